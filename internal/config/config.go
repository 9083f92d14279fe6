package config

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// KeywordEmotion 动作关键词到情绪的映射条目，按声明顺序匹配
type KeywordEmotion struct {
	Keyword string `yaml:"keyword"`
	Emotion string `yaml:"emotion"`
}

// EmotionKeywords 某种情绪对应的触发词表，按声明顺序匹配
type EmotionKeywords struct {
	Emotion  string   `yaml:"emotion"`
	Keywords []string `yaml:"keywords"`
}

// AtmosphereKeywords 某种场景氛围对应的触发词表
type AtmosphereKeywords struct {
	Atmosphere string   `yaml:"atmosphere"`
	Keywords   []string `yaml:"keywords"`
}

// LLMConfig 语言模型客户端配置
type LLMConfig struct {
	Provider string `yaml:"provider"` // "ark" / "http" / ""（禁用，使用规则引擎）
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	TimeoutS int    `yaml:"timeout_seconds"`
}

// Config 分镜生成配置。缺失或损坏的配置文件一律回退到内置默认值，不会导致调用失败。
type Config struct {
	// 剧本解析
	ScenePatterns      []string             `yaml:"scene_patterns"`
	DialoguePatterns   []string             `yaml:"dialogue_patterns"`
	ActionEmotionMap   []KeywordEmotion     `yaml:"action_emotion_map"`
	EmotionKeywords    []EmotionKeywords    `yaml:"emotion_keywords"`
	TimeKeywords       map[string]string    `yaml:"time_keywords"`
	LocationKeywords   map[string]string    `yaml:"location_keywords"`
	AppearanceKeywords map[string]string    `yaml:"appearance_keywords"`
	AtmosphereKeywords []AtmosphereKeywords `yaml:"atmosphere_keywords"`

	// 时序规划
	ActionDurations       map[string]float64 `yaml:"action_durations"`
	EmotionMultipliers    map[string]float64 `yaml:"emotion_multipliers"`
	DefaultActionDuration float64            `yaml:"default_action_duration"`
	TargetSegmentDuration float64            `yaml:"target_segment_duration"`
	MaxDurationDeviation  float64            `yaml:"max_duration_deviation"`

	// 审查与重试
	MaxShotDuration float64 `yaml:"max_shot_duration"`
	MaxRetries      int     `yaml:"max_retries"`

	// 兜底默认值
	DefaultLocation  string `yaml:"default_location"`
	DefaultTime      string `yaml:"default_time"`
	DefaultCharacter string `yaml:"default_character"`
	DefaultEmotion   string `yaml:"default_emotion"`

	// 外部协作方
	LLM       LLMConfig `yaml:"llm"`
	PromptDir string    `yaml:"prompt_dir"`
	OutputDir string    `yaml:"output_dir"`

	ListenAddr string `yaml:"listen_addr"`
}

// Default 返回内置默认配置，默认表取自中文剧本解析的常用词汇
func Default() *Config {
	return &Config{
		ScenePatterns: []string{
			`场景[:：]\s*([^，。；\n]+)[，。；]\s*([^，。；\n]+)`,
			`地点[:：]\s*([^，。；\n]+)[，。；]\s*时间[:：]\s*([^，。；\n]+)`,
			`([^，。；\n]+)[，。；]\s*([^，。；\n]+)\s*[的]?场景`,
		},
		DialoguePatterns: []string{
			`^([^（(：:]+)[（(]([^)）]+)[)）][:：]\s*(.+)$`,
			`^([^：:]+)[:：]\s*(.+)$`,
		},
		ActionEmotionMap: []KeywordEmotion{
			{"漫步", "轻松"}, {"散步", "悠闲"}, {"行走", "平静"}, {"走", "平静"},
			{"微笑", "愉悦"}, {"笑", "开心"}, {"流泪", "伤心"}, {"哭", "悲伤"},
			{"颤抖", "恐惧"}, {"紧张", "紧张"}, {"冷静", "平静"}, {"思考", "专注"},
		},
		EmotionKeywords: []EmotionKeywords{
			{"高兴", []string{"开心", "高兴", "快乐", "愉快", "欢乐", "兴奋", "太好了", "真棒", "哈哈"}},
			{"悲伤", []string{"伤心", "难过", "悲伤", "哭", "流泪", "痛苦", "可怜", "惨"}},
			{"愤怒", []string{"生气", "愤怒", "恼火", "气死了", "混蛋", "该死", "讨厌", "烦"}},
			{"惊讶", []string{"啊", "哇", "惊讶", "震惊", "没想到", "真的吗", "怎么会"}},
			{"恐惧", []string{"害怕", "恐惧", "恐怖", "吓死了", "救命", "危险"}},
			{"紧张", []string{"紧张", "忐忑", "不安", "焦虑", "担心", "怎么办", "不会吧"}},
			{"平静", []string{"好的", "嗯", "是的", "知道了", "明白", "了解"}},
			{"疑问", []string{"为什么", "什么", "哪里", "怎么", "如何", "是不是", "有没有"}},
		},
		TimeKeywords: map[string]string{
			"早上": "早晨", "早晨": "早晨", "上午": "上午", "中午": "中午",
			"下午": "下午", "晚上": "晚上", "深夜": "深夜", "凌晨": "凌晨",
		},
		LocationKeywords: map[string]string{
			"咖啡馆": "咖啡馆", "餐厅": "餐厅", "办公室": "办公室", "公园": "公园",
			"街道": "街道", "学校": "学校", "医院": "医院", "车站": "车站",
			"图书馆": "图书馆", "会议室": "会议室",
		},
		AppearanceKeywords: map[string]string{
			"西装": "穿着正式西装", "休闲装": "穿着休闲服装", "老人": "年长的",
			"年轻人": "年轻的", "男人": "男性", "女人": "女性",
		},
		AtmosphereKeywords: []AtmosphereKeywords{
			{"温馨", []string{"温暖", "舒适", "柔和", "愉悦", "快乐", "放松"}},
			{"正式", []string{"严肃", "庄重", "严谨", "认真"}},
			{"轻松", []string{"愉快", "轻松", "休闲", "自在"}},
			{"紧张", []string{"紧张", "焦虑", "不安", "担忧"}},
			{"浪漫", []string{"浪漫", "甜蜜", "幸福"}},
			{"悲伤", []string{"难过", "伤心", "悲伤", "痛苦"}},
			{"愤怒", []string{"生气", "愤怒", "恼火", "激动"}},
			{"惊讶", []string{"惊讶", "震惊", "意外", "突然"}},
		},
		ActionDurations: map[string]float64{
			"坐在": 2.0, "站在": 2.0, "躺着": 2.0, "低头": 1.0, "抬头": 1.0,
			"转身": 1.5, "看向": 1.0, "看见": 1.0, "愣住": 2.0, "发抖": 2.0,
			"走": 2.0, "慢走": 3.0, "快走": 1.5, "跑": 1.0, "进入": 3.0,
			"离开": 3.0, "靠近": 2.5, "远离": 2.5,
			"说话": 3.0, "握手": 2.0, "拥抱": 3.0, "递东西": 2.0, "接东西": 1.5,
			"操作手机": 3.0, "喝咖啡": 2.0, "看书": 3.0,
			"微笑": 1.5, "皱眉": 1.0, "哭泣": 4.0, "大笑": 3.0, "愤怒": 2.5, "惊讶": 2.0,
		},
		EmotionMultipliers: map[string]float64{
			"平静": 1.0, "惊讶": 1.2, "震惊": 1.5, "愤怒": 1.3, "悲伤": 1.4,
			"快乐": 0.9, "紧张": 1.2, "恐惧": 1.3, "厌恶": 1.1, "困惑": 1.2, "焦虑": 1.3,
		},
		DefaultActionDuration: 2.0,
		TargetSegmentDuration: 5.0,
		MaxDurationDeviation:  0.5,
		MaxShotDuration:       5.5,
		MaxRetries:            2,
		DefaultLocation:       "城市咖啡馆",
		DefaultTime:           "下午3点",
		DefaultCharacter:      "李明",
		DefaultEmotion:        "平静",
		LLM: LLMConfig{
			Model:    "ep-20250220181854-c8s82",
			TimeoutS: 30,
		},
		PromptDir:  "prompts",
		OutputDir:  "data/output",
		ListenAddr: ":8080",
	}
}

// Load 从YAML文件加载配置并叠加到默认值上，再应用环境变量覆盖。
// 文件缺失或解析失败只记录警告，返回的配置仍然可用。
func Load(path string) *Config {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.WithError(err).Warnf("无法读取配置文件 %s，使用默认配置", path)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			logrus.WithError(err).Warnf("配置文件 %s 解析失败，使用默认配置", path)
			cfg = Default()
		} else {
			cfg.fillDefaults()
			logrus.Debugf("成功加载剧本解析配置: %s", path)
		}
	}

	cfg.applyEnv()
	return cfg
}

// fillDefaults 补齐YAML中被显式置空的数值字段
func (c *Config) fillDefaults() {
	d := Default()
	if len(c.ScenePatterns) == 0 {
		c.ScenePatterns = d.ScenePatterns
	}
	if len(c.DialoguePatterns) == 0 {
		c.DialoguePatterns = d.DialoguePatterns
	}
	if len(c.EmotionKeywords) == 0 {
		c.EmotionKeywords = d.EmotionKeywords
	}
	if len(c.ActionDurations) == 0 {
		c.ActionDurations = d.ActionDurations
	}
	if len(c.EmotionMultipliers) == 0 {
		c.EmotionMultipliers = d.EmotionMultipliers
	}
	if c.DefaultActionDuration <= 0 {
		c.DefaultActionDuration = d.DefaultActionDuration
	}
	if c.TargetSegmentDuration <= 0 {
		c.TargetSegmentDuration = d.TargetSegmentDuration
	}
	if c.MaxDurationDeviation <= 0 {
		c.MaxDurationDeviation = d.MaxDurationDeviation
	}
	if c.MaxShotDuration <= 0 {
		c.MaxShotDuration = d.MaxShotDuration
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.DefaultLocation == "" {
		c.DefaultLocation = d.DefaultLocation
	}
	if c.DefaultTime == "" {
		c.DefaultTime = d.DefaultTime
	}
	if c.DefaultCharacter == "" {
		c.DefaultCharacter = d.DefaultCharacter
	}
	if c.DefaultEmotion == "" {
		c.DefaultEmotion = d.DefaultEmotion
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.PromptDir == "" {
		c.PromptDir = d.PromptDir
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.TimeoutS <= 0 {
		c.LLM.TimeoutS = d.LLM.TimeoutS
	}
}

// applyEnv 环境变量覆盖，便于容器部署
func (c *Config) applyEnv() {
	if v := os.Getenv("ARK_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ARK_CHAT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("STORYBOARD_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("STORYBOARD_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("STORYBOARD_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("STORYBOARD_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.MaxRetries = n
		}
	}
}
