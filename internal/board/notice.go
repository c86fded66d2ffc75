package board

import "time"

type NoticeLevel string

const (
	NoticeError NoticeLevel = "error"
	NoticeInfo  NoticeLevel = "info"
)

// Notice is a user-visible message about something the board could not do.
type Notice struct {
	Time    time.Time   `json:"time"`
	Level   NoticeLevel `json:"level"`
	OrderID string      `json:"orderId,omitempty"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
}

// DrainNotices returns every pending notice without blocking. Unread notices
// beyond the buffer are dropped oldest first.
func (b *Board) DrainNotices() []Notice {
	var out []Notice
	for {
		select {
		case n := <-b.notices:
			out = append(out, n)
		default:
			return out
		}
	}
}

func (b *Board) publish(n Notice) {
	if n.Time.IsZero() {
		n.Time = b.now()
	}
	for {
		select {
		case b.notices <- n:
			return
		default:
		}
		select {
		case <-b.notices:
		default:
		}
	}
}
