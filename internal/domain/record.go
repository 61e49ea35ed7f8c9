package domain

// Contributor is the author of a revision. Registered users carry a
// username and id, anonymous edits carry only an IP.
type Contributor struct {
	Username string `json:"username,omitempty"`
	ID       int64  `json:"id,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// Revision is the single revision embedded in an articles dump page.
type Revision struct {
	ID          int64       `json:"id"`
	ParentID    int64       `json:"parentid,omitempty"`
	Timestamp   string      `json:"timestamp"`
	Contributor Contributor `json:"contributor"`
	Comment     string      `json:"comment,omitempty"`
	Model       string      `json:"model,omitempty"`
	Format      string      `json:"format,omitempty"`
	SHA1        string      `json:"sha1,omitempty"`
	Minor       bool        `json:"minor,omitempty"`

	// Text is the raw markup body. It is always present, possibly
	// empty; interpreting it is the caller's concern.
	Text string `json:"text"`
}

// Record is one page extracted from the dump stream, yielded exactly
// once and in archive order.
type Record struct {
	Title     string   `json:"title"`
	Namespace int64    `json:"ns"`
	ID        int64    `json:"id"`
	Redirect  string   `json:"redirect,omitempty"`
	Revision  Revision `json:"revision"`
}
