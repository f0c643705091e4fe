package transfer

import "fmt"

// Stage 提交流水线的阶段
//
// 阶段只能向前推进，不允许回退：
//
//	Built → Serialized → Proven → Sealed → Broadcast → {Confirmed | Failed | TimedOut}
type Stage int

const (
	StageBuilt Stage = iota
	StageSerialized
	StageProven
	StageSealed
	StageBroadcast
	StageConfirmed
	StageFailed
	StageTimedOut
)

// String 阶段名
func (s Stage) String() string {
	switch s {
	case StageBuilt:
		return "built"
	case StageSerialized:
		return "serialized"
	case StageProven:
		return "proven"
	case StageSealed:
		return "sealed"
	case StageBroadcast:
		return "broadcast"
	case StageConfirmed:
		return "confirmed"
	case StageFailed:
		return "failed"
	case StageTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal 判断阶段是否为终点
func (s Stage) Terminal() bool {
	return s == StageConfirmed || s == StageFailed || s == StageTimedOut
}

// advance 推进到下一阶段，拒绝回退或原地踏步
func (s *Stage) advance(next Stage) error {
	if next <= *s {
		return fmt.Errorf("illegal stage transition: %s -> %s", *s, next)
	}
	*s = next
	return nil
}
