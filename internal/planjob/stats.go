package planjob

// JobStats 聚合了规划任务状态的统计信息，常用于仪表盘或健康检查。
type JobStats struct {
	Total                int   `json:"total"`
	Pending              int   `json:"pending"`
	Planning             int   `json:"planning"`
	Ready                int   `json:"ready"`
	AwaitingConfirmation int   `json:"awaiting_confirmation"`
	Failed               int   `json:"failed"`
	Cancelled            int   `json:"cancelled"`
	OldestUpdatedAt      int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt      int64 `json:"newest_updated_at,omitempty"`
}
