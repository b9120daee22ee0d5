package out

import (
	syncdto "gametrack/internal/modules/sync/dto"
	syncin "gametrack/internal/modules/sync/port/in"
	trackerdto "gametrack/internal/modules/tracker/dto"
)

// SyncObserverAdapter forwards session transitions to the sync module.
// The sync side returns immediately and delivers in the background, so
// the poll loop is never blocked here.
type SyncObserverAdapter struct {
	sync syncin.Usecase
}

func NewSyncObserverAdapter(sync syncin.Usecase) SyncObserverAdapter {
	return SyncObserverAdapter{sync: sync}
}

func (a SyncObserverAdapter) OnStart(event trackerdto.SessionEvent) {
	a.sync.NotifySessionStart(toPushEvent(event))
}

func (a SyncObserverAdapter) OnEnd(event trackerdto.SessionEvent) {
	a.sync.NotifySessionEnd(toPushEvent(event))
}

func toPushEvent(event trackerdto.SessionEvent) syncdto.PushEvent {
	return syncdto.PushEvent{
		SessionID:   event.SessionID,
		SubjectID:   event.SubjectID,
		GameName:    event.GameName,
		Category:    event.Category,
		DeviceID:    event.DeviceID,
		StartedAt:   event.StartedAt,
		EndedAt:     event.EndedAt,
		DurationMin: event.DurationMin,
	}
}
