package model

// EventStats summarizes log activity over a window.
type EventStats struct {
	Since      int64            `json:"since"`
	Total      int64            `json:"total"`
	ByType     map[string]int64 `json:"by_type"`
	ByDay      []DayCount       `json:"by_day"`
	TopThreads []ThreadCount    `json:"top_threads"`
}

// DayCount is the number of events appended on one UTC day.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// ThreadCount is the number of events appended to one thread.
type ThreadCount struct {
	ThreadID int64  `json:"thread_id"`
	Title    string `json:"title,omitempty"`
	Count    int64  `json:"count"`
}
