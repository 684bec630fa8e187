package models

import "time"

// MasterAccountUsername is the username of the bootstrap account.
const MasterAccountUsername = "admin"

// Account is a login identity that can open sessions.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsMaster     bool      `json:"isMaster"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AccountRecord is the on-disk shape; unlike Account it keeps the hash.
type AccountRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	IsMaster     bool      `json:"isMaster"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AccountRecords converts accounts into their persisted form.
func AccountRecords(accounts []Account) []AccountRecord {
	out := make([]AccountRecord, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, AccountRecord(a))
	}
	return out
}

// AccountsFromRecords converts persisted records back into accounts,
// dropping records without an ID.
func AccountsFromRecords(records []AccountRecord) []Account {
	out := make([]Account, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		out = append(out, Account(r))
	}
	return out
}
