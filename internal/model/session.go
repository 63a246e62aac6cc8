package model

import "time"

// WorkoutType は練習の種別を表す。
type WorkoutType string

const (
	WorkoutEndurance WorkoutType = "ENDURANCE"
	WorkoutSprint    WorkoutType = "SPRINT"
	WorkoutTechnique WorkoutType = "TECHNIQUE"
	WorkoutRecovery  WorkoutType = "RECOVERY"
	WorkoutRacePace  WorkoutType = "RACE_PACE"
	WorkoutDryland   WorkoutType = "DRYLAND"
)

// Stroke は泳法を表す。
type Stroke string

const (
	StrokeFreestyle    Stroke = "FREESTYLE"
	StrokeBackstroke   Stroke = "BACKSTROKE"
	StrokeBreaststroke Stroke = "BREASTSTROKE"
	StrokeButterfly    Stroke = "BUTTERFLY"
	StrokeIM           Stroke = "IM"
	StrokeMixed        Stroke = "MIXED"
)

// Intensity は練習強度を表す。
type Intensity string

const (
	IntensityLow      Intensity = "LOW"
	IntensityModerate Intensity = "MODERATE"
	IntensityHigh     Intensity = "HIGH"
	IntensityMax      Intensity = "MAX"
)

var validWorkoutTypes = map[WorkoutType]bool{
	WorkoutEndurance: true, WorkoutSprint: true, WorkoutTechnique: true,
	WorkoutRecovery: true, WorkoutRacePace: true, WorkoutDryland: true,
}

var validStrokes = map[Stroke]bool{
	StrokeFreestyle: true, StrokeBackstroke: true, StrokeBreaststroke: true,
	StrokeButterfly: true, StrokeIM: true, StrokeMixed: true,
}

var validIntensities = map[Intensity]bool{
	IntensityLow: true, IntensityModerate: true, IntensityHigh: true, IntensityMax: true,
}

// Valid は定義済みの練習種別かを返す。
func (w WorkoutType) Valid() bool { return validWorkoutTypes[w] }

// Valid は定義済みの泳法かを返す。
func (s Stroke) Valid() bool { return validStrokes[s] }

// Valid は定義済みの強度かを返す。
func (i Intensity) Valid() bool { return validIntensities[i] }

// Session は1回分の練習記録を表す。
// 所有者（UserID）のみが参照・更新・削除できる。
// TeamIDは明示的なチーム帰属で、未設定の場合は所有者の所属チーム経由でのみ集計される。
type Session struct {
	ID          string
	Title       string
	Description *string
	Date        time.Time
	Duration    int  // 分
	Distance    *int // メートル
	WorkoutType *WorkoutType
	Stroke      *Stroke
	Intensity   *Intensity
	UserID      string
	TeamID      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
