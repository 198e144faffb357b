package postgres

import "github.com/alanyoungcy/tradeloop/internal/domain"

// Journal bundles the three stores over one pool.
type Journal struct {
	*TickStore
	*SummaryStore
	*AuditStore
	client *Client
}

var _ domain.Journal = (*Journal)(nil)

// NewJournal creates a Journal over c. Closing the journal closes c.
func NewJournal(c *Client) *Journal {
	return &Journal{
		TickStore:    NewTickStore(c.Pool()),
		SummaryStore: NewSummaryStore(c.Pool()),
		AuditStore:   NewAuditStore(c.Pool()),
		client:       c,
	}
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	j.client.Close()
	return nil
}
