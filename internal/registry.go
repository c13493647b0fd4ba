package internal

// Registry 線上連線登記表
//
// 不自帶鎖：所有存取都經由 Manager，在 Manager.mu 保護下進行。
type Registry struct {
	participants map[string]*Participant // connID -> Participant
}

// NewRegistry 創建登記表
func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]*Participant),
	}
}

// Add 登記新連線，重複登記時回傳既有的 Participant
func (r *Registry) Add(connID string) *Participant {
	if p, exists := r.participants[connID]; exists {
		return p
	}
	p := &Participant{ID: connID}
	r.participants[connID] = p
	return p
}

// Remove 移除連線
func (r *Registry) Remove(connID string) {
	delete(r.participants, connID)
}

// Get 查詢連線
func (r *Registry) Get(connID string) (*Participant, bool) {
	p, exists := r.participants[connID]
	return p, exists
}

// Count 線上人數
func (r *Registry) Count() int {
	return len(r.participants)
}
