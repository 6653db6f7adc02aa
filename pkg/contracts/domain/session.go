package domain

import "time"

// Session is an ephemeral view of a currently-connected credential. Sessions
// are owned by the enforcement device; this service fetches them live and
// never persists them.
type Session struct {
	ID          string        `json:"id"`
	VoucherCode string        `json:"voucher_code"`
	Address     string        `json:"address"`
	Uptime      time.Duration `json:"uptime"`
	BytesIn     int64         `json:"bytes_in"`
	BytesOut    int64         `json:"bytes_out"`
}
