package models

import "time"

// RequestType discriminates what a workflow request asks for.
type RequestType string

const (
	// RequestTypeRegistration asks for a new user account.
	RequestTypeRegistration RequestType = "registration"
	// RequestTypeDownloadLink asks for a time-limited publication download link.
	RequestTypeDownloadLink RequestType = "downloadLink"
)

// RequestStatus defines lifecycle states for workflow requests.
type RequestStatus string

const (
	// RequestStatusPending indicates the request is awaiting review.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusApproved indicates the request was accepted.
	RequestStatusApproved RequestStatus = "approved"
	// RequestStatusRejected indicates the request was denied.
	RequestStatusRejected RequestStatus = "rejected"
)

// Request is a visitor-submitted workflow request. The type-specific fields
// are stored flat and surfaced through the typed Extra accessors; which set
// is populated is fixed by Type.
type Request struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	Type          RequestType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status        RequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Username      string        `gorm:"size:254;not null;index" json:"username"`
	FirstName     *string       `gorm:"size:120" json:"-"`
	LastName      *string       `gorm:"size:120" json:"-"`
	PublicationID *uint         `gorm:"index" json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// RegistrationExtra is the payload of a registration request.
type RegistrationExtra struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DownloadLinkExtra is the payload of a download-link request.
type DownloadLinkExtra struct {
	PublicationID uint `json:"publicationId"`
}

// RegistrationExtra returns the registration payload, or false when the
// request is of another type.
func (r *Request) RegistrationExtra() (RegistrationExtra, bool) {
	if r.Type != RequestTypeRegistration {
		return RegistrationExtra{}, false
	}
	extra := RegistrationExtra{}
	if r.FirstName != nil {
		extra.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		extra.LastName = *r.LastName
	}
	return extra, true
}

// DownloadLinkExtra returns the download-link payload, or false when the
// request is of another type.
func (r *Request) DownloadLinkExtra() (DownloadLinkExtra, bool) {
	if r.Type != RequestTypeDownloadLink || r.PublicationID == nil {
		return DownloadLinkExtra{}, false
	}
	return DownloadLinkExtra{PublicationID: *r.PublicationID}, true
}

// IsPending reports whether the request can still be decided.
func (r *Request) IsPending() bool {
	return r.Status == RequestStatusPending
}

// RequestView is the API shape of a request, with the type-specific fields
// nested under extra the way clients submitted them.
type RequestView struct {
	ID        uint          `json:"id"`
	Type      RequestType   `json:"type"`
	Status    RequestStatus `json:"status"`
	Username  string        `json:"username"`
	Extra     interface{}   `json:"extra"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// View converts the stored request into its API representation.
func (r *Request) View() RequestView {
	view := RequestView{
		ID:        r.ID,
		Type:      r.Type,
		Status:    r.Status,
		Username:  r.Username,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	switch r.Type {
	case RequestTypeRegistration:
		extra, _ := r.RegistrationExtra()
		view.Extra = extra
	case RequestTypeDownloadLink:
		if extra, ok := r.DownloadLinkExtra(); ok {
			view.Extra = extra
		}
	}
	return view
}
