package domain

import "time"

// Room is the aggregate root of a watch session. Every mutating
// operation validates first, then applies the change and appends
// exactly one event; a failed operation leaves the aggregate untouched.
type Room struct {
	id       string
	filmId   string
	ownerId  string
	isSerial bool
	viewers  map[string]*Viewer
	version  int64
	events   []Event
}

func NewRoom(id, filmId, ownerId string, isSerial bool) *Room {
	return &Room{
		id:       id,
		filmId:   filmId,
		ownerId:  ownerId,
		isSerial: isSerial,
		viewers:  make(map[string]*Viewer),
	}
}

// RoomSnapshot is the plain persisted form of a Room.
type RoomSnapshot struct {
	Id       string            `json:"id"`
	FilmId   string            `json:"film_id"`
	OwnerId  string            `json:"owner_id"`
	IsSerial bool              `json:"is_serial"`
	Viewers  map[string]Viewer `json:"viewers"`
}

// NewRoomFromSnapshot rehydrates a Room without raising any events.
func NewRoomFromSnapshot(snapshot RoomSnapshot, version int64) *Room {
	viewers := make(map[string]*Viewer, len(snapshot.Viewers))
	for id, viewer := range snapshot.Viewers {
		v := viewer
		viewers[id] = &v
	}

	return &Room{
		id:       snapshot.Id,
		filmId:   snapshot.FilmId,
		ownerId:  snapshot.OwnerId,
		isSerial: snapshot.IsSerial,
		viewers:  viewers,
		version:  version,
	}
}

func (r *Room) Snapshot() RoomSnapshot {
	viewers := make(map[string]Viewer, len(r.viewers))
	for id, viewer := range r.viewers {
		viewers[id] = *viewer
	}

	return RoomSnapshot{
		Id:       r.id,
		FilmId:   r.filmId,
		OwnerId:  r.ownerId,
		IsSerial: r.isSerial,
		Viewers:  viewers,
	}
}

func (r *Room) Id() string      { return r.id }
func (r *Room) FilmId() string  { return r.filmId }
func (r *Room) OwnerId() string { return r.ownerId }
func (r *Room) IsSerial() bool  { return r.isSerial }
func (r *Room) Version() int64  { return r.version }

func (r *Room) Viewer(id string) (*Viewer, bool) {
	viewer, ok := r.viewers[id]
	return viewer, ok
}

func (r *Room) ViewerCount() int { return len(r.viewers) }

// PullEvents drains the event buffer. The unit of work calls this once
// per commit.
func (r *Room) PullEvents() []Event {
	events := r.events
	r.events = nil
	return events
}

func (r *Room) raise(event Event) {
	r.events = append(r.events, event)
}

func (r *Room) viewer(id string) (*Viewer, error) {
	viewer, ok := r.viewers[id]
	if !ok {
		return nil, ErrViewerNotFound
	}

	return viewer, nil
}

func (r *Room) Join(viewer Viewer) error {
	if _, ok := r.viewers[viewer.Id]; ok {
		return ErrViewerAlreadyExists
	}

	v := viewer
	r.viewers[viewer.Id] = &v
	r.raise(ViewerJoined{RoomId: r.id, Viewer: v})

	return nil
}

func (r *Room) Leave(id string) error {
	if _, err := r.viewer(id); err != nil {
		return err
	}

	delete(r.viewers, id)
	r.raise(ViewerLeaved{RoomId: r.id, ViewerId: id})

	return nil
}

// Kick removes a viewer against their will. It raises a distinct event
// so the removed viewer's connection learns it was forced out.
func (r *Room) Kick(id string) error {
	if _, err := r.viewer(id); err != nil {
		return err
	}

	delete(r.viewers, id)
	r.raise(ViewerKicked{RoomId: r.id, ViewerId: id})

	return nil
}

func (r *Room) SetOnline(id string, online bool) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Online = online
	r.raise(ViewerOnlineChanged{RoomId: r.id, ViewerId: id, Online: online})

	return nil
}

func (r *Room) SetPause(id string, onPause bool, timeLine time.Duration, buffering, isSync bool) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Player.OnPause = onPause
	viewer.Player.TimeLine = timeLine
	r.raise(ViewerPauseChanged{
		RoomId:    r.id,
		ViewerId:  id,
		OnPause:   onPause,
		TimeLine:  timeLine,
		Buffering: buffering,
		IsSync:    isSync,
	})

	return nil
}

func (r *Room) SetTimeLine(id string, timeLine time.Duration, isSync bool) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Player.TimeLine = timeLine
	r.raise(ViewerTimeLineChanged{RoomId: r.id, ViewerId: id, TimeLine: timeLine, IsSync: isSync})

	return nil
}

func (r *Room) SetSpeed(id string, speed float64, isSync bool) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Player.Speed = speed
	r.raise(ViewerSpeedChanged{RoomId: r.id, ViewerId: id, Speed: speed, IsSync: isSync})

	return nil
}

func (r *Room) SetEpisode(id string, season, episode int, isSync bool) error {
	if !r.isSerial {
		return ErrRoomNotSerial
	}

	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Player.Season = &season
	viewer.Player.Episode = &episode
	r.raise(ViewerEpisodeChanged{RoomId: r.id, ViewerId: id, Season: season, Episode: episode, IsSync: isSync})

	return nil
}

func (r *Room) SetFullScreen(id string, fullScreen bool, isSync bool) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Player.FullScreen = fullScreen
	r.raise(ViewerFullScreenChanged{RoomId: r.id, ViewerId: id, FullScreen: fullScreen, IsSync: isSync})

	return nil
}

func (r *Room) SetMuted(id string, muted bool) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Player.Muted = muted
	r.raise(ViewerMuteChanged{RoomId: r.id, ViewerId: id, Muted: muted})

	return nil
}

func (r *Room) SetSettings(id string, settings Settings) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Settings = settings
	r.raise(ViewerSettingsChanged{RoomId: r.id, ViewerId: id, Settings: settings})

	return nil
}

func (r *Room) SetName(id string, name string) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.Name = name
	r.raise(ViewerNameChanged{RoomId: r.id, ViewerId: id, Name: name})

	return nil
}

func (r *Room) SetPhoto(id string, photoKey string) error {
	viewer, err := r.viewer(id)
	if err != nil {
		return err
	}

	viewer.PhotoKey = photoKey
	r.raise(ViewerPhotoChanged{RoomId: r.id, ViewerId: id, PhotoKey: photoKey})

	return nil
}

func (r *Room) Beep(initiatorId, targetId string) error {
	if _, err := r.viewer(initiatorId); err != nil {
		return err
	}

	target, err := r.viewer(targetId)
	if err != nil {
		return err
	}

	beeps := target.incrStat("beeps")
	r.raise(ViewerBeeped{RoomId: r.id, InitiatorId: initiatorId, TargetId: targetId, Beeps: beeps})

	return nil
}

func (r *Room) Scream(initiatorId, targetId string) error {
	if _, err := r.viewer(initiatorId); err != nil {
		return err
	}

	target, err := r.viewer(targetId)
	if err != nil {
		return err
	}

	screams := target.incrStat("screams")
	r.raise(ViewerScreamed{RoomId: r.id, InitiatorId: initiatorId, TargetId: targetId, Screams: screams})

	return nil
}
