package model

// Action 剧本动作，对话和肢体动作二选一（有时两者都有文本，时长估算取较大值）
type Action struct {
	Character string `json:"character"`          // 角色名，永不为空
	Dialogue  string `json:"dialogue,omitempty"` // 对话内容
	Movement  string `json:"action,omitempty"`   // 动作描述
	Emotion   string `json:"emotion"`            // 情绪，无法推断时默认"平静"
}

// IsDialogue 该动作是否为对话
func (a Action) IsDialogue() bool {
	return a.Dialogue != ""
}

// Appearance 角色外观描述
type Appearance struct {
	Age      string `json:"age"`
	Clothing string `json:"clothing"`
	Features string `json:"features"`
}

// Scene 结构化场景，由剧本解析器产出后不再修改
type Scene struct {
	Location       string                `json:"location"`
	Time           string                `json:"time"`
	Atmosphere     string                `json:"atmosphere,omitempty"`
	Actions        []Action              `json:"actions"`
	CharactersInfo map[string]Appearance `json:"characters_info,omitempty"`
}

// StructuredScript 结构化剧本
type StructuredScript struct {
	Scenes []Scene `json:"scenes"`
}

// Segment 固定时长的动作分段，一个分段对应一个分镜
type Segment struct {
	ID          int      `json:"id"`
	Actions     []Action `json:"actions"`
	EstDuration float64  `json:"est_duration"` // 估算时长（秒）
	SceneID     int      `json:"scene_id"`     // 最后一个加入动作所属的场景索引
}

// Characters 返回分段中出现的角色名，去重且保持首次出现顺序
func (s *Segment) Characters() []string {
	seen := make(map[string]bool)
	var names []string
	for _, a := range s.Actions {
		if a.Character != "" && !seen[a.Character] {
			seen[a.Character] = true
			names = append(names, a.Character)
		}
	}
	return names
}

// CharacterState 角色在某一时刻的物理/情绪状态，也用作连续性锚点
type CharacterState struct {
	CharacterName string `json:"character_name"`
	Pose          string `json:"pose"`
	Position      string `json:"position"`
	Emotion       string `json:"emotion"`
	GazeDirection string `json:"gaze_direction"`
	Holding       string `json:"holding"`
	Appearance    string `json:"appearance,omitempty"`
}

// CharacterConstraint 对下一个分镜初始状态的角色级约束
type CharacterConstraint struct {
	MustStartWithPose     string `json:"must_start_with_pose"`
	MustStartWithPosition string `json:"must_start_with_position"`
	MustStartWithEmotion  string `json:"must_start_with_emotion"`
	MustStartWithGaze     string `json:"must_start_with_gaze"`
	MustStartWithHolding  string `json:"must_start_with_holding"`
	CharacterDescription  string `json:"character_description"`
}

// CameraConstraint 场景级相机建议
type CameraConstraint struct {
	RecommendedShotType     string `json:"recommended_shot_type"`
	RecommendedAngle        string `json:"recommended_angle"`
	MustMaintainConsistency bool   `json:"must_maintain_consistency"`
}

// ContinuityConstraints 单个分段的连续性约束，只喂给一次分镜生成
type ContinuityConstraints struct {
	Characters map[string]CharacterConstraint `json:"characters"`
	Scene      *Scene                         `json:"scene,omitempty"`
	Camera     CameraConstraint               `json:"camera"`
}

// Camera 分镜的相机元数据
type Camera struct {
	ShotType string `json:"shot_type"`
	Angle    string `json:"angle"`
	Movement string `json:"movement"`
}

// Shot 最终产物：一段约5秒视频的生成指令
type Shot struct {
	ShotID               string                    `json:"shot_id"`
	TimeRange            [2]float64                `json:"time_range_sec"`
	SceneContext         *Scene                    `json:"scene_context"`
	ChineseDescription   string                    `json:"chinese_description"`
	AIPrompt             string                    `json:"ai_prompt"`
	Camera               Camera                    `json:"camera"`
	CharactersInFrame    []string                  `json:"characters_in_frame"`
	Dialogue             string                    `json:"dialogue"`
	InitialState         []CharacterState          `json:"initial_state"`
	FinalState           []CharacterState          `json:"final_state"`
	ContinuityAnchor     []CharacterState          `json:"continuity_anchor"`
	FinalContinuityState map[string]CharacterState `json:"final_continuity_state"` // 下游schema要求始终存在
}

// Duration 分镜时长（秒）
func (s *Shot) Duration() float64 {
	return s.TimeRange[1] - s.TimeRange[0]
}

// ShotReview 单个分镜的审查结果
type ShotReview struct {
	ShotID      string   `json:"shot_id"`
	IsValid     bool     `json:"is_valid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// ContinuityCheck 连续性验证结果
type ContinuityCheck struct {
	IsContinuous bool     `json:"is_continuous"`
	Issues       []string `json:"issues"`
	Suggestions  []string `json:"suggestions"`
}

// SequenceReview 分镜序列的连续性审查结果
type SequenceReview struct {
	TotalShots            int      `json:"total_shots"`
	HasContinuityIssues   bool     `json:"has_continuity_issues"`
	ContinuityIssues      []string `json:"continuity_issues"`
	ContinuitySuggestions []string `json:"continuity_suggestions"`
	OverallAssessment     string   `json:"overall_assessment"`
}

// ResultMetadata 结果元数据
type ResultMetadata struct {
	GeneratedAt        string `json:"generated_at"`
	LLMModel           string `json:"llm_model"`
	ContinuityVerified bool   `json:"continuity_verified"`
	Version            string `json:"version"`
}

// StoryboardResult 一次分镜生成请求的完整结果
type StoryboardResult struct {
	JobID                string                    `json:"job_id"`
	InputScript          string                    `json:"input_script"`
	Style                string                    `json:"style"`
	DurationPerShot      int                       `json:"duration_per_shot"`
	TotalShots           int                       `json:"total_shots"`
	TotalDurationSec     float64                   `json:"total_duration_sec"`
	Shots                []*Shot                   `json:"shots"`
	FinalContinuityState map[string]CharacterState `json:"final_continuity_state"`
	Warnings             []string                  `json:"warnings"`
	Metadata             ResultMetadata            `json:"metadata"`
}
