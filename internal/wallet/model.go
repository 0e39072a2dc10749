package wallet

import "time"

// Pass describes one ticket pass handed to Google or Apple Wallet.
type Pass struct {
	Serial    string    `json:"serial"`
	BookingID int64     `json:"booking_id"`
	EventID   int64     `json:"event_id"`
	EventName string    `json:"event_name"`
	EventDate time.Time `json:"event_date"`
	Location  string    `json:"location"`
	Holder    string    `json:"holder"`
	Quantity  int       `json:"quantity"`
}

// Links are the save-to-wallet URLs returned after a booking.
type Links struct {
	Google string `json:"google_wallet_url"`
	Apple  string `json:"apple_wallet_url"`
}
