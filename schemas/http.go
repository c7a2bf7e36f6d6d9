package schemas

type ErrorResponse struct {
	Message string `json:"message"`
}

type RoomSummary struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Clients  int    `json:"clients"`
	Capacity int    `json:"capacity"`
	Tick     uint64 `json:"tick"`
	Pinned   bool   `json:"pinned"`
}

type RoomDetails struct {
	RoomSummary
	Metrics RoomMetrics `json:"metrics"`
}

type RoomMetrics struct {
	TickCount          int64   `json:"tickCount"`
	TickOverruns       int64   `json:"tickOverruns"`
	AverageTickMs      float64 `json:"averageTickMs"`
	MessagesRouted     int64   `json:"messagesRouted"`
	UnknownMessages    int64   `json:"unknownMessages"`
	CommandsApplied    int64   `json:"commandsApplied"`
	Admissions         int64   `json:"admissions"`
	AdmissionsRejected int64   `json:"admissionsRejected"`
	Evictions          int64   `json:"evictions"`
	TransportFailures  int64   `json:"transportFailures"`
	ProbesAbandoned    int64   `json:"probesAbandoned"`
	HighLatencyProbes  int64   `json:"highLatencyProbes"`
	LifecycleDropped   int64   `json:"lifecycleDropped"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}
