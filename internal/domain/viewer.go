package domain

import "time"

type Player struct {
	OnPause    bool          `json:"on_pause"`
	FullScreen bool          `json:"full_screen"`
	Muted      bool          `json:"muted"`
	Speed      float64       `json:"speed"`
	TimeLine   time.Duration `json:"time_line"`
	Season     *int          `json:"season,omitempty"`
	Episode    *int          `json:"episode,omitempty"`
}

type Settings struct {
	Notifications bool `json:"notifications"`
	AutoSync      bool `json:"auto_sync"`
}

type Viewer struct {
	Id            string           `json:"id"`
	Name          string           `json:"name"`
	PhotoKey      string           `json:"photo_key,omitempty"`
	CanKick       bool             `json:"can_kick"`
	CanBeep       bool             `json:"can_beep"`
	CanScream     bool             `json:"can_scream"`
	CanSync       bool             `json:"can_sync"`
	CanChangeName bool             `json:"can_change_name"`
	Online        bool             `json:"online"`
	Player        Player           `json:"player"`
	Tags          []string         `json:"tags,omitempty"`
	Stats         map[string]int64 `json:"stats,omitempty"`
	Settings      Settings         `json:"settings"`
}

func (v *Viewer) stat(name string) int64 {
	if v.Stats == nil {
		return 0
	}

	return v.Stats[name]
}

func (v *Viewer) incrStat(name string) int64 {
	if v.Stats == nil {
		v.Stats = make(map[string]int64, 1)
	}
	v.Stats[name]++

	return v.Stats[name]
}
