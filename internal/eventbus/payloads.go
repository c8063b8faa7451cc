package eventbus

// RegistrationRequestedPayload accompanies RegistrationRequested.
type RegistrationRequestedPayload struct {
	RequestID uint   `json:"request_id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// RegistrationApprovedPayload accompanies RegistrationApproved. Password is
// the generated plaintext credential, carried only long enough to be mailed
// to the new user.
type RegistrationApprovedPayload struct {
	RequestID uint   `json:"request_id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"-"`
}

// RegistrationRejectedPayload accompanies RegistrationRejected.
type RegistrationRejectedPayload struct {
	RequestID uint   `json:"request_id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DownloadLinkRequestedPayload accompanies DownloadLinkRequested.
type DownloadLinkRequestedPayload struct {
	RequestID     uint   `json:"request_id"`
	Username      string `json:"username"`
	PublicationID uint   `json:"publication_id"`
}

// DownloadLinkApprovedPayload accompanies DownloadLinkApproved.
type DownloadLinkApprovedPayload struct {
	RequestID        uint   `json:"request_id"`
	Username         string `json:"username"`
	PublicationID    uint   `json:"publication_id"`
	PublicationTitle string `json:"publication_title"`
	Code             string `json:"-"`
	DownloadLink     string `json:"-"`
}

// DownloadLinkRejectedPayload accompanies DownloadLinkRejected.
type DownloadLinkRejectedPayload struct {
	RequestID        uint   `json:"request_id"`
	Username         string `json:"username"`
	PublicationID    uint   `json:"publication_id"`
	PublicationTitle string `json:"publication_title"`
}

// PasswordResetRequestedPayload accompanies PasswordResetRequested. The link
// embeds the single-use token, so it is mailed but never serialized.
type PasswordResetRequestedPayload struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	ResetLink string `json:"-"`
}

// PasswordResetCompletedPayload accompanies PasswordResetCompleted.
type PasswordResetCompletedPayload struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
}
