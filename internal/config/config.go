package config

// ASRConfig holds speech recognition provider settings.
type ASRConfig struct {
	BaseURL           string `json:"base_url"`
	AppID             string `json:"appid"`
	AccessToken       string `json:"access_token"`
	ResourceID        string `json:"resource_id"`
	Cluster           string `json:"cluster"`
	Workflow          string `json:"workflow"`
	BoostingTableName string `json:"boosting_table_name"`
	TimeoutSeconds    int    `json:"timeout_s"`
}

// LLMConfig holds text generation provider settings for the transcript
// polish and hook script stages.
type LLMConfig struct {
	BaseURL            string  `json:"base_url"`
	APIKey             string  `json:"api_key"`
	Model              string  `json:"model"`
	TimeoutSeconds     int     `json:"timeout_s"`
	Temperature        float64 `json:"temperature"`
	ScriptSystemPrompt string  `json:"script_system_prompt"`
	PolishSystemPrompt string  `json:"asr_polish_system_prompt"`
}

// VideoConfig holds the video generation provider settings.
type VideoConfig struct {
	BaseURL             string `json:"base_url"`
	APIKey              string `json:"api_key"`
	Model               string `json:"model"`
	TimeoutSeconds      int    `json:"timeout_s"`
	PollIntervalSeconds int    `json:"poll_interval_s"`
	SystemPrompt        string `json:"system_prompt"`
}

// PipelineConfig holds orchestration knobs.
type PipelineConfig struct {
	DefaultASRClipSeconds  int  `json:"default_asr_clip_seconds"`
	DefaultHookClipSeconds int  `json:"default_hook_clip_seconds"`
	EnableTranscriptPolish bool `json:"enable_asr_polish"`
	MaxUploadMB            int  `json:"max_upload_mb"`
	MaxParallelJobs        int  `json:"max_parallel_jobs"`
}

// Config is the persisted application configuration. A snapshot of it is
// stored in job meta at submission, so later edits never affect a running
// job.
type Config struct {
	ASR      ASRConfig      `json:"asr"`
	LLM      LLMConfig      `json:"llm"`
	Video    VideoConfig    `json:"video"`
	Pipeline PipelineConfig `json:"pipeline"`
}

// Default returns the built-in configuration used when no config file
// exists yet.
func Default() Config {
	return Config{
		ASR: ASRConfig{
			BaseURL:        "https://openspeech.bytedance.com",
			ResourceID:     "volc.bigasr.auc_turbo",
			Cluster:        "volcengine_input_common",
			Workflow:       "audio_in,resample,partition,vad,fe,decode,itn,nlu_punctuate",
			TimeoutSeconds: 120,
		},
		LLM: LLMConfig{
			BaseURL:        "https://ark.cn-beijing.volces.com",
			Model:          "doubao-seed-2-0-pro-260215",
			TimeoutSeconds: 120,
			Temperature:    0.7,
			ScriptSystemPrompt: "You write cold-open scripts for short-form video. " +
				"From the given transcript, produce an absurd, funny, eye-catching " +
				"but brand-safe five second hook script. Return JSON only.",
			PolishSystemPrompt: "You correct speech recognition transcripts. Fix " +
				"misrecognized words, filler repetition and sentence breaks. Keep " +
				"the original meaning and add no new facts.",
		},
		Video: VideoConfig{
			BaseURL:             "https://ark.cn-beijing.volces.com",
			Model:               "seedance-1-5-pro-250528",
			TimeoutSeconds:      600,
			PollIntervalSeconds: 5,
			SystemPrompt: "Generate an absurd, funny, visually striking video " +
				"hook with exaggerated style and fast pacing, suitable as a " +
				"short-drama cold open.",
		},
		Pipeline: PipelineConfig{
			DefaultASRClipSeconds:  15,
			DefaultHookClipSeconds: 5,
			EnableTranscriptPolish: true,
			MaxUploadMB:            300,
			MaxParallelJobs:        1,
		},
	}
}
