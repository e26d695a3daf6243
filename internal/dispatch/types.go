package dispatch

import "time"

// Media is one media payload described by its original filename and raw
// bytes. It is staged as a temporary file only for the duration of a send.
type Media struct {
	Name string
	Data []byte
}

// Request describes one broadcast: the text (may be empty when only media
// is sent), the accounts to send from, in order, and optional voice/video
// payloads.
type Request struct {
	Message    string
	AccountIDs []string
	Voice      *Media
	Video      *Media
}

// SendResult is the tagged outcome of one delivery attempt.
type SendResult struct {
	Account     string
	Destination string
	Kind        string // "voice_note", "video_note", "text"
	Err         error
	Took        time.Duration
}

// Report aggregates the per-send outcomes of one broadcast so callers can
// assert on partial success without parsing logs.
type Report struct {
	Sends []SendResult
	// SkippedAccounts lists accounts whose connection could not be
	// obtained; their destinations were not attempted. Unknown and
	// inactive accounts are excluded silently and do not appear here.
	SkippedAccounts []string
}

func (r Report) Delivered() int {
	n := 0
	for _, s := range r.Sends {
		if s.Err == nil {
			n++
		}
	}
	return n
}

func (r Report) Failed() int { return len(r.Sends) - r.Delivered() }
