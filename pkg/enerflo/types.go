package enerflo

import "encoding/json"

// Customer is the v1 REST customer resource, trimmed to the fields the
// sync reads.
type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	LeadOwner *Rep   `json:"leadOwner,omitempty"`
}

// Deal is the v2 GraphQL deal resource.
type Deal struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	SubmittedAt    string          `json:"submittedAt"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
	SalesRep       *Rep            `json:"salesRep,omitempty"`
	SalesTeam      *Team           `json:"salesTeam,omitempty"`
	LeadOwner      *Rep            `json:"leadOwner,omitempty"`
	WelcomeCall    *WelcomeCall    `json:"welcomeCall,omitempty"`
	Notes          []Note          `json:"notes,omitempty"`
	Financing      *Financing      `json:"financing,omitempty"`
	SiteSurvey     *SiteSurvey     `json:"siteSurvey,omitempty"`
	AdditionalWork *AdditionalWork `json:"additionalWork,omitempty"`
	Contract       *Contract       `json:"contract,omitempty"`
	Shading        *Shading        `json:"shading,omitempty"`
	NewMoveIn      string          `json:"newMoveIn,omitempty"`
	ReadyToSubmit  bool            `json:"readyToSubmit,omitempty"`
}

// Rep identifies a sales rep or lead owner.
type Rep struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Team identifies a sales team.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WelcomeCall is the lender welcome-call outcome. Questions and Answers
// are kept raw; their shape varies per lender.
type WelcomeCall struct {
	ID           string          `json:"id"`
	Completed    bool            `json:"completed"`
	Date         string          `json:"date"`
	Duration     float64         `json:"duration"`
	RecordingURL string          `json:"recordingUrl"`
	Agent        string          `json:"agent"`
	Outcome      string          `json:"outcome"`
	Questions    json.RawMessage `json:"questions,omitempty"`
	Answers      json.RawMessage `json:"answers,omitempty"`
}

// Note is one deal note.
type Note struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	CreatedAt string `json:"createdAt"`
	Category  string `json:"category"`
}

// Financing is the deal's financing state.
type Financing struct {
	Approved          bool    `json:"approved"`
	Submitted         bool    `json:"submitted"`
	SignedDocs        bool    `json:"signedDocs"`
	Type              string  `json:"type"`
	ProductName       string  `json:"productName"`
	ProductID         string  `json:"productId"`
	LenderName        string  `json:"lenderName"`
	Status            string  `json:"status"`
	TermMonths        float64 `json:"termMonths"`
	PaymentStructure  string  `json:"paymentStructure"`
	DownPaymentMethod string  `json:"downPaymentMethod"`
}

// SiteSurvey is the site-survey wizard state.
type SiteSurvey struct {
	Scheduled bool   `json:"scheduled"`
	Selection string `json:"selection"`
}

// AdditionalWork is the additional-work wizard state.
type AdditionalWork struct {
	Needed bool   `json:"needed"`
	Types  string `json:"types"`
}

// Contract is the contract generation state.
type Contract struct {
	Generated         bool `json:"generated"`
	ApprovalEnabled   bool `json:"approvalEnabled"`
	NoDocumentsToSign bool `json:"noDocumentsToSign"`
}

// Shading is the shading-concern flag.
type Shading struct {
	Concerns bool `json:"concerns"`
}
