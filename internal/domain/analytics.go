package domain

// BandStat aggregates completions by band and signal
type BandStat struct {
	Band        Band    `json:"band"`
	Signal      Signal  `json:"signal"`
	Completions int64   `json:"completions"`
	AvgDelta    float64 `json:"avg_delta"`
}

// ExerciseStat summarizes how learners fared on one exercise
type ExerciseStat struct {
	ExerciseID   string  `json:"exercise_id"`
	Completions  int64   `json:"completions"`
	AvgAccuracy  float64 `json:"avg_accuracy"`
	AvgTimeRatio float64 `json:"avg_time_ratio"`
	TooHardRate  float64 `json:"too_hard_rate"`
	TooEasyRate  float64 `json:"too_easy_rate"`
}
