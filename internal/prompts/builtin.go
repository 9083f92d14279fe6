package prompts

// 内置模板。prompts目录下的同名YAML文件优先生效。
var builtinTemplates = map[string]string{
	"shot_generation": shotGenerationTemplate,
	"qa_review":       qaReviewTemplate,
	"script_enhance":  scriptEnhanceTemplate,
}

const shotGenerationTemplate = `你是一位专业的电影分镜师和AI提示词工程师。请根据以下信息，为每一个5秒的短视频片段生成详细的分镜描述和AI提示词。

## 任务要求
1. 生成中文画面描述（供人阅读）
2. 生成英文AI视频提示词（供AI模型使用）
3. 确保提示词详细、准确，包含必要的视觉元素
4. 遵循指定的视频风格

## 输入信息

### 场景信息
场景位置: {location}
时间: {time}
氛围: {atmosphere}

### 动作序列
{actions_text}

### 连续性约束
{continuity_constraints_text}

### 视频风格
{style}

### 分镜ID
{shot_id}

## 输出格式
请严格按照以下JSON格式输出，不要添加任何额外的解释或说明：

{{
  "chinese_description": "详细的中文画面描述",
  "ai_prompt": "详细的英文AI视频提示词",
  "camera": {{
    "shot_type": "镜头类型",
    "angle": "拍摄角度",
    "movement": "镜头运动"
  }},
  "initial_state": [
    {{
      "character_name": "角色名",
      "pose": "初始姿势",
      "position": "初始位置",
      "holding": "手持物品",
      "emotion": "初始情绪",
      "appearance": "角色外观描述"
    }}
  ],
  "final_state": [
    {{
      "character_name": "角色名",
      "pose": "结束姿势",
      "position": "结束位置",
      "gaze_direction": "视线方向",
      "emotion": "结束情绪",
      "holding": "手持物品"
    }}
  ]
}}`

const qaReviewTemplate = `你是一位严格的分镜质量审查专家。请审查以下分镜是否与对应分段的内容一致、画面描述是否完整、提示词是否可用于AI视频生成。

## 分镜信息
{shot_info}

## 分段信息
{segment_info}

## 输出格式
请严格按照以下JSON格式输出审查结果，不要添加任何额外说明：

{{
  "issues": ["发现的问题描述"],
  "suggestions": ["改进建议"]
}}

如果没有发现问题，issues和suggestions返回空数组。`

const scriptEnhanceTemplate = `请作为一个专业的中文剧本分析专家，对以下结构化剧本进行增强处理：
1. 确保每个动作都有合适的情绪标签
2. 为每个角色推断合理的外观描述（年龄、穿着、外貌特征等）
3. 优化场景信息（地点和时间）
4. 保持原始动作序列的顺序和内容

请返回增强后的JSON格式结果，不要添加额外说明。

原始剧本：
{script_json}`
