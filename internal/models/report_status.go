package models

// ReportStatus 报告状态
//
//	active -> dispatched -> responded -> resolved
//	active|dispatched -> failed
//	任意非终态 -> cancelled | false_alarm
type ReportStatus string

const (
	StatusActive     ReportStatus = "active"
	StatusDispatched ReportStatus = "dispatched"
	StatusResponded  ReportStatus = "responded"
	StatusResolved   ReportStatus = "resolved"
	StatusFailed     ReportStatus = "failed"
	StatusCancelled  ReportStatus = "cancelled"
	StatusFalseAlarm ReportStatus = "false_alarm"
)

// 主链上的先后顺序，允许向前跳过
var chainOrder = map[ReportStatus]int{
	StatusActive:     0,
	StatusDispatched: 1,
	StatusResponded:  2,
	StatusResolved:   3,
}

// Terminal 是否终态
func (s ReportStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled || s == StatusFalseAlarm
}

// Valid 是否为已知状态
func (s ReportStatus) Valid() bool {
	_, ok := chainOrder[s]
	return ok || s == StatusFailed || s == StatusCancelled || s == StatusFalseAlarm
}

// CanTransitionTo 是否允许从 s 流转到 to
func (s ReportStatus) CanTransitionTo(to ReportStatus) bool {
	if s.Terminal() || !to.Valid() {
		return false
	}
	if to == StatusCancelled || to == StatusFalseAlarm {
		return true
	}
	if to == StatusFailed {
		return s == StatusActive || s == StatusDispatched
	}
	if s == StatusFailed {
		return to == StatusResolved
	}
	from, ok := chainOrder[s]
	return ok && chainOrder[to] > from
}
