package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/llm"
	"storyboard/internal/model"
	"storyboard/internal/prompts"
)

// 从文本中提取角色和时间的固定模式
var (
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`在([^，。；\n]+)[处里]`),
		regexp.MustCompile(`位于([^，。；\n]+)`),
		regexp.MustCompile(`来到([^，。；\n]+)`),
		regexp.MustCompile(`走进([^，。；\n]+)`),
	}
	characterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^([^，。；\s]+)[，。；\s]+(.+)$`),
		regexp.MustCompile(`^([^，。；\s]+)[做干]了(.+)$`),
	}
	namePattern      = regexp.MustCompile(`([\x{4e00}-\x{9fa5}]{2,3})[是在做说]`)
	titlePattern     = regexp.MustCompile(`(?:先生|女士|小姐|医生|老师|经理|总)[\x{4e00}-\x{9fa5}]`)
	clockPattern     = regexp.MustCompile(`(\d{1,2})[:：](\d{1,2})`)
	hourPattern      = regexp.MustCompile(`(\d{1,2})[点时]`)
	paragraphSplit   = regexp.MustCompile(`[\n\r]+`)
	sentenceSplit    = regexp.MustCompile(`[，。；！？]`)
	punctuationClean = regexp.MustCompile(`[，。；：]`)
)

// 最多识别的角色数
const maxCharacters = 5

// Parser 剧本解析器：将整段中文剧本转换为结构化场景/动作序列。
// Parse对外永不失败，内部错误一律回退到默认结构并记录原因。
type Parser struct {
	cfg              *config.Config
	invoker          llm.Invoker
	prompts          *prompts.Manager
	scenePatterns    []*regexp.Regexp
	dialoguePatterns []*regexp.Regexp
}

// New 创建剧本解析器。配置中的非法正则会被跳过并告警；
// 编译结果为空时回退到内置模式。
func New(cfg *config.Config, invoker llm.Invoker, pm *prompts.Manager) *Parser {
	p := &Parser{cfg: cfg, invoker: invoker, prompts: pm}
	p.scenePatterns = compilePatterns(cfg.ScenePatterns, config.Default().ScenePatterns)
	p.dialoguePatterns = compilePatterns(cfg.DialoguePatterns, config.Default().DialoguePatterns)
	return p
}

func compilePatterns(patterns, fallback []string) []*regexp.Regexp {
	var compiled []*regexp.Regexp
	for _, s := range patterns {
		re, err := regexp.Compile(s)
		if err != nil {
			logrus.WithError(err).Warnf("正则表达式模式编译失败: %s", s)
			continue
		}
		compiled = append(compiled, re)
	}
	if len(compiled) == 0 {
		for _, s := range fallback {
			compiled = append(compiled, regexp.MustCompile(s))
		}
	}
	return compiled
}

// Parse 解析剧本文本。保证至少返回一个场景。
func (p *Parser) Parse(ctx context.Context, scriptText string) (*model.StructuredScript, error) {
	logrus.Debugf("开始解析剧本: %.60s...", scriptText)

	result := &model.StructuredScript{}

	for _, sc := range p.detectScenes(scriptText) {
		result.Scenes = append(result.Scenes, model.Scene{
			Location: sc.location,
			Time:     sc.time,
			Actions:  p.parseSceneActions(sc.content),
		})
	}

	// 没有检测到场景时使用默认场景并解析整个文本
	if len(result.Scenes) == 0 {
		result.Scenes = append(result.Scenes, model.Scene{
			Location: p.cfg.DefaultLocation,
			Time:     p.cfg.DefaultTime,
			Actions:  p.parseSceneActions(scriptText),
		})
	}

	enhanced := p.enhance(ctx, result)
	p.ensureWellFormed(enhanced)

	logrus.Debugf("剧本解析完成，提取了 %d 个场景", len(enhanced.Scenes))
	return enhanced, nil
}

type detectedScene struct {
	location string
	time     string
	content  string
}

// detectScenes 场景检测：正则标记 → 段落关键词 → 空。
// 每个场景的内容截止到同一模式的下一处匹配，最后一个场景到文本末尾。
func (p *Parser) detectScenes(scriptText string) []detectedScene {
	for _, pattern := range p.scenePatterns {
		matches := pattern.FindAllStringSubmatchIndex(scriptText, -1)
		if len(matches) == 0 {
			continue
		}
		var scenes []detectedScene
		for i, m := range matches {
			if len(m) < 6 {
				continue
			}
			location := strings.TrimSpace(scriptText[m[2]:m[3]])
			timeHint := strings.TrimSpace(scriptText[m[4]:m[5]])
			end := len(scriptText)
			if i+1 < len(matches) {
				end = matches[i+1][0]
			}
			scenes = append(scenes, detectedScene{
				location: location,
				time:     p.extractTime(timeHint),
				content:  scriptText[m[1]:end],
			})
		}
		if len(scenes) > 0 {
			return scenes
		}
	}

	// 按段落扫描地点关键词
	paragraphs := paragraphSplit.Split(scriptText, -1)
	for i, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		location := p.extractLocationFromText(para)
		if location == "" {
			continue
		}
		t := p.extractTimeFromText(para)
		if t == "" {
			t = p.cfg.DefaultTime
		}
		return []detectedScene{{
			location: location,
			time:     t,
			content:  strings.Join(paragraphs[i:], "\n"),
		}}
	}

	return nil
}

// extractLocationFromText 从文本中提取地点信息
func (p *Parser) extractLocationFromText(text string) string {
	for _, pattern := range locationPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	for _, location := range sortedKeys(p.cfg.LocationKeywords) {
		if !strings.Contains(text, location) {
			continue
		}
		// 尝试提取更具体的地点描述
		ctxPattern, err := regexp.Compile(`.{0,20}` + regexp.QuoteMeta(location) + `.{0,10}`)
		if err == nil {
			if m := ctxPattern.FindString(text); m != "" {
				return punctuationClean.ReplaceAllString(strings.TrimSpace(m), "")
			}
		}
		return location
	}

	return ""
}

// extractTime 从时间提示中提取标准时间格式
func (p *Parser) extractTime(timeHint string) string {
	if t := formatClockTime(timeHint); t != "" {
		return t
	}

	for _, keyword := range sortedKeys(p.cfg.TimeKeywords) {
		if strings.Contains(timeHint, keyword) {
			return p.cfg.TimeKeywords[keyword]
		}
	}

	if m := hourPattern.FindStringSubmatch(timeHint); m != nil {
		hour, _ := strconv.Atoi(m[1])
		period := "上午"
		if hour >= 12 {
			period = "下午"
		}
		if hour > 12 {
			hour -= 12
		}
		return fmt.Sprintf("%s%d点", period, hour)
	}

	return p.cfg.DefaultTime
}

// extractTimeFromText 从自由文本中提取时间信息，没有则返回空串
func (p *Parser) extractTimeFromText(text string) string {
	for _, keyword := range sortedKeys(p.cfg.TimeKeywords) {
		if strings.Contains(text, keyword) {
			if t := formatClockTime(text); t != "" {
				return t
			}
			return p.cfg.TimeKeywords[keyword]
		}
	}
	return formatClockTime(text)
}

func formatClockTime(text string) string {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	hour, _ := strconv.Atoi(m[1])
	period := "上午"
	if hour >= 12 {
		period = "下午"
	}
	if hour > 12 {
		hour -= 12
	}
	return fmt.Sprintf("%s%d:%s", period, hour, m[2])
}

// parseSceneActions 逐行解析场景内容，提取动作序列
func (p *Parser) parseSceneActions(content string) []model.Action {
	var actions []model.Action
	currentCharacter := ""

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if action, ok := p.parseDialogueLine(line); ok {
			actions = append(actions, action)
			currentCharacter = action.Character
			continue
		}

		if action, ok := p.parseActionLine(line, currentCharacter); ok {
			actions = append(actions, action)
			currentCharacter = action.Character
		}
	}

	// 逐行没有识别到任何动作时做整体分析
	if len(actions) == 0 {
		actions = p.analyzeWholeContent(content)
	}

	return actions
}

// parseDialogueLine 解析对话行，首个匹配的模式生效
func (p *Parser) parseDialogueLine(line string) (model.Action, bool) {
	for _, pattern := range p.dialoguePatterns {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch len(m) {
		case 3: // 角色: 对话
			dialogue := strings.TrimSpace(m[2])
			return model.Action{
				Character: strings.TrimSpace(m[1]),
				Dialogue:  dialogue,
				Emotion:   p.inferEmotionFromDialogue(dialogue),
			}, true
		case 4: // 角色（情绪）: 对话
			dialogue := strings.TrimSpace(m[3])
			emotion := strings.TrimSpace(m[2])
			if emotion == "" {
				emotion = p.inferEmotionFromDialogue(dialogue)
			}
			return model.Action{
				Character: strings.TrimSpace(m[1]),
				Dialogue:  dialogue,
				Emotion:   emotion,
			}, true
		}
	}
	return model.Action{}, false
}

// parseActionLine 解析动作行。角色归属顺序：行内主语 → 最近的对话角色 → 短名启发式
func (p *Parser) parseActionLine(line, currentCharacter string) (model.Action, bool) {
	character := ""
	actionText := line

	for _, pattern := range characterPatterns {
		if m := pattern.FindStringSubmatch(line); m != nil {
			character = m[1]
			actionText = m[2]
			break
		}
	}

	if character == "" && currentCharacter != "" {
		character = currentCharacter
	}
	if character == "" {
		character = extractCharacterFromText(line)
	}
	if character == "" {
		return model.Action{}, false
	}

	return model.Action{
		Character: strings.TrimSpace(character),
		Movement:  strings.TrimSpace(actionText),
		Emotion:   p.inferEmotionFromAction(actionText),
	}, true
}

// extractCharacterFromText 短名启发式：2-3个连续汉字后跟动词指示字，或称谓+姓氏
func extractCharacterFromText(text string) string {
	if m := namePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := titlePattern.FindString(text); m != "" {
		return m
	}
	return ""
}

// inferEmotionFromDialogue 从对话推断情绪：标点线索优先，其次关键词表
func (p *Parser) inferEmotionFromDialogue(dialogue string) string {
	switch {
	case strings.Contains(dialogue, "！") || strings.Contains(dialogue, "!"):
		return "激动"
	case strings.Contains(dialogue, "？") || strings.Contains(dialogue, "?"):
		return "疑问"
	case strings.Contains(dialogue, "...") || strings.Contains(dialogue, "…"):
		return "犹豫"
	}

	for _, entry := range p.cfg.EmotionKeywords {
		for _, keyword := range entry.Keywords {
			if strings.Contains(dialogue, keyword) {
				return entry.Emotion
			}
		}
	}

	return p.cfg.DefaultEmotion
}

// inferEmotionFromAction 从动作描述推断情绪：动作词映射优先，其次关键词表
func (p *Parser) inferEmotionFromAction(actionText string) string {
	for _, entry := range p.cfg.ActionEmotionMap {
		if strings.Contains(actionText, entry.Keyword) {
			return entry.Emotion
		}
	}

	for _, entry := range p.cfg.EmotionKeywords {
		for _, keyword := range entry.Keywords {
			if strings.Contains(actionText, keyword) {
				return entry.Emotion
			}
		}
	}

	return p.cfg.DefaultEmotion
}

// analyzeWholeContent 整体分析：按句读切分，轮流分配给识别到的角色
func (p *Parser) analyzeWholeContent(content string) []model.Action {
	characters := p.extractCharactersFromText(content)
	if len(characters) == 0 {
		characters = []string{p.cfg.DefaultCharacter}
	}

	var actions []model.Action
	idx := 0
	for _, fragment := range sentenceSplit.Split(content, -1) {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		character := characters[idx%len(characters)]
		if containsQuote(fragment) {
			actions = append(actions, model.Action{
				Character: character,
				Dialogue:  fragment,
				Emotion:   p.inferEmotionFromDialogue(fragment),
			})
		} else {
			actions = append(actions, model.Action{
				Character: character,
				Movement:  fragment,
				Emotion:   p.inferEmotionFromAction(fragment),
			})
		}
		idx++
	}

	return actions
}

func containsQuote(s string) bool {
	for _, q := range []string{`"`, "'", "“", "”", "‘", "’"} {
		if strings.Contains(s, q) {
			return true
		}
	}
	return false
}

// extractCharactersFromText 提取文本中可能的角色名，保持首次出现顺序，最多5个
func (p *Parser) extractCharactersFromText(text string) []string {
	seen := make(map[string]bool)
	var characters []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" && !seen[name] {
			seen[name] = true
			characters = append(characters, name)
		}
	}

	for _, m := range namePattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range titlePattern.FindAllString(text, -1) {
		add(m)
	}
	for _, line := range strings.Split(text, "\n") {
		for _, pattern := range p.dialoguePatterns {
			if m := pattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				add(m[1])
				break
			}
		}
	}

	if len(characters) > maxCharacters {
		characters = characters[:maxCharacters]
	}
	return characters
}

// enhance 结果增强：配置了LLM时先尝试LLM增强，失败回退到规则增强
func (p *Parser) enhance(ctx context.Context, script *model.StructuredScript) *model.StructuredScript {
	if p.invoker == nil {
		logrus.Debug("未配置LLM，使用规则增强代替")
		return p.enhanceWithRules(script)
	}

	enhanced, err := p.enhanceWithLLM(ctx, script)
	if err != nil {
		if llm.IsCredentialError(err) {
			logrus.WithError(err).Warn("LLM增强失败：API密钥错误或权限不足")
		} else {
			logrus.WithError(err).Warn("LLM增强失败，使用规则增强代替")
		}
		return p.enhanceWithRules(script)
	}
	return enhanced
}

func (p *Parser) enhanceWithLLM(ctx context.Context, script *model.StructuredScript) (*model.StructuredScript, error) {
	scriptJSON, err := json.Marshal(script)
	if err != nil {
		return nil, err
	}
	prompt, err := p.prompts.Render(ctx, "script_enhance", map[string]any{"script_json": string(scriptJSON)})
	if err != nil {
		return nil, err
	}
	response, err := p.invoker.Invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var enhanced model.StructuredScript
	if err := json.Unmarshal([]byte(llm.ExtractJSON(response)), &enhanced); err != nil {
		return nil, fmt.Errorf("响应不是有效的JSON格式: %w", err)
	}
	if len(enhanced.Scenes) == 0 {
		return nil, fmt.Errorf("LLM增强结果缺少场景")
	}
	return &enhanced, nil
}

// enhanceWithRules 规则增强：补齐情绪、推断场景氛围和角色外观
func (p *Parser) enhanceWithRules(script *model.StructuredScript) *model.StructuredScript {
	appearances := make(map[string]model.Appearance)

	for i := range script.Scenes {
		scene := &script.Scenes[i]
		if scene.Atmosphere == "" {
			scene.Atmosphere = p.inferAtmosphere(scene)
		}

		for j := range scene.Actions {
			action := &scene.Actions[j]
			if action.Emotion == "" {
				if action.IsDialogue() {
					action.Emotion = p.inferEmotionFromDialogue(action.Dialogue)
				} else if action.Movement != "" {
					action.Emotion = p.inferEmotionFromAction(action.Movement)
				} else {
					action.Emotion = p.cfg.DefaultEmotion
				}
			}

			character := action.Character
			if character != "" {
				if _, ok := appearances[character]; !ok {
					appearances[character] = p.inferCharacterAppearance(collectCharacterText(script, character))
				}
			}
		}

		if scene.CharactersInfo == nil {
			scene.CharactersInfo = make(map[string]model.Appearance)
		}
		for _, action := range scene.Actions {
			if appearance, ok := appearances[action.Character]; ok {
				scene.CharactersInfo[action.Character] = appearance
			}
		}
	}

	return script
}

func collectCharacterText(script *model.StructuredScript, character string) string {
	var b strings.Builder
	for _, scene := range script.Scenes {
		for _, action := range scene.Actions {
			if action.Character != character {
				continue
			}
			if action.Dialogue != "" {
				b.WriteString(" ")
				b.WriteString(action.Dialogue)
			}
			if action.Movement != "" {
				b.WriteString(" ")
				b.WriteString(action.Movement)
			}
		}
	}
	return b.String()
}

// inferAtmosphere 推断场景氛围：关键词表 → 时间/地点启发式 → 普通
func (p *Parser) inferAtmosphere(scene *model.Scene) string {
	var b strings.Builder
	b.WriteString(scene.Location)
	b.WriteString(" ")
	b.WriteString(scene.Time)
	for _, action := range scene.Actions {
		b.WriteString(" ")
		b.WriteString(action.Dialogue)
		b.WriteString(" ")
		b.WriteString(action.Movement)
	}
	sceneText := b.String()

	for _, entry := range p.cfg.AtmosphereKeywords {
		for _, keyword := range entry.Keywords {
			if strings.Contains(sceneText, keyword) {
				return entry.Atmosphere
			}
		}
	}

	switch {
	case strings.Contains(scene.Time, "夜晚") || strings.Contains(scene.Time, "深夜"):
		return "昏暗"
	case strings.Contains(scene.Time, "清晨") || strings.Contains(scene.Time, "早晨"):
		return "清新"
	case strings.Contains(scene.Time, "黄昏") || strings.Contains(scene.Time, "傍晚"):
		return "温馨"
	}

	switch {
	case strings.Contains(scene.Location, "咖啡馆") || strings.Contains(scene.Location, "餐厅"):
		return "温馨"
	case strings.Contains(scene.Location, "办公室") || strings.Contains(scene.Location, "会议室"):
		return "正式"
	case strings.Contains(scene.Location, "公园") || strings.Contains(scene.Location, "花园"):
		return "轻松"
	case strings.Contains(scene.Location, "医院") || strings.Contains(scene.Location, "诊所"):
		return "严肃"
	case strings.Contains(scene.Location, "酒吧") || strings.Contains(scene.Location, "夜店"):
		return "热闹"
	}

	return "普通"
}

var (
	ageKeywords      = []string{"老人", "年轻人", "小孩"}
	clothingKeywords = []string{"西装", "正装", "休闲装", "T恤", "长裙"}
	youngCues        = []string{"哇塞", "酷", "帅", "小姐姐", "小哥哥"}
	oldCues          = []string{"唉", "想当年", "现在的年轻人"}
	athleticCues     = []string{"跑步", "跳跃", "运动"}
	slowCues         = []string{"慢慢", "缓缓", "吃力"}
)

// inferCharacterAppearance 基于角色相关文本推断外观
func (p *Parser) inferCharacterAppearance(characterText string) model.Appearance {
	appearance := model.Appearance{
		Age:      "未知",
		Clothing: "普通服装",
		Features: "普通外貌",
	}

	for _, keyword := range sortedKeys(p.cfg.AppearanceKeywords) {
		if !strings.Contains(characterText, keyword) {
			continue
		}
		description := p.cfg.AppearanceKeywords[keyword]
		switch {
		case inSet(keyword, ageKeywords):
			appearance.Age = description
		case inSet(keyword, clothingKeywords):
			appearance.Clothing = description
		default:
			appearance.Features = description
		}
	}

	if anyInText(characterText, youngCues) {
		appearance.Age = "年轻人"
	} else if anyInText(characterText, oldCues) {
		appearance.Age = "中年人"
	}

	if anyInText(characterText, athleticCues) {
		appearance.Features = "身材健壮"
	} else if anyInText(characterText, slowCues) {
		appearance.Features = "身材一般"
	}

	return appearance
}

func inSet(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

func anyInText(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ensureWellFormed 补齐缺失字段，保证输出结构完整
func (p *Parser) ensureWellFormed(script *model.StructuredScript) {
	for i := range script.Scenes {
		scene := &script.Scenes[i]
		if scene.Location == "" {
			scene.Location = p.cfg.DefaultLocation
		}
		if scene.Time == "" {
			scene.Time = p.cfg.DefaultTime
		}
		for j := range scene.Actions {
			action := &scene.Actions[j]
			if action.Character == "" {
				action.Character = p.cfg.DefaultCharacter
			}
			if action.Emotion == "" {
				action.Emotion = p.cfg.DefaultEmotion
			}
			if action.Dialogue == "" && action.Movement == "" {
				action.Movement = "未知动作"
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
