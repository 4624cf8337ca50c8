package core

// ParticipantAmount is one participant's share of a month.
type ParticipantAmount struct {
	UserID string
	Name   string
	Amount Money
	Status AllocationStatus
}

// MonthOverview is a compact summary of a session month.
type MonthOverview struct {
	YearMonth
	Total         Money
	ExpenseCount  int
	ByParticipant []ParticipantAmount
}

// NewMonthOverview summarises a month from its raw expenses and allocations.
func NewMonthOverview(m *Month, allocations []Allocation) MonthOverview {
	ov := MonthOverview{YearMonth: m.YearMonth, Total: m.Total, ExpenseCount: len(m.Expenses)}
	for _, a := range allocations {
		if a.Period() != m.YearMonth {
			continue
		}
		ov.ByParticipant = append(ov.ByParticipant, ParticipantAmount{
			UserID: a.UserID,
			Name:   a.ParticipantName,
			Amount: a.Amount,
			Status: a.Status,
		})
	}
	return ov
}
