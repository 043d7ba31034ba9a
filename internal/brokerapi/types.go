package brokerapi

// LoginType is the backend's flow discriminator.
type LoginType string

const (
	LoginSignIn LoginType = "SignIn"
	LoginSignUp LoginType = "SignUp"
)

// OTPType is the delivery channel of an OTP.
type OTPType string

const (
	OTPMobile OTPType = "mobile"
	OTPEmail  OTPType = "email"
)

// IdentityCheckRequest is the PAN/name/DOB plausibility check body.
type IdentityCheckRequest struct {
	PAN  string `json:"pan"`
	Name string `json:"name"`
	DOB  string `json:"dob"`
}

type identityCheckResponse struct {
	Status      FlexString `json:"status"`
	PANMatched  FlexString `json:"pan_matched"`
	NameMatched FlexString `json:"name_matched"`
	DOBMatched  FlexString `json:"dob_matched"`
	Message     string     `json:"message"`
}

// IdentityMatch is the payload of a successful plausibility check.
type IdentityMatch struct {
	PANMatched  bool
	NameMatched bool
	DOBMatched  bool
}

// GenerateOTPRequest is the OTP generation body.
type GenerateOTPRequest struct {
	LoginType    LoginType `json:"LoginType"`
	PAN          string    `json:"pan"`
	OTPType      OTPType   `json:"OTP_Type"`
	OTPValidator string    `json:"OTP_Validator"`
	BranchCode   string    `json:"BranchCode"`
	DOB          string    `json:"dob,omitempty"`
	ClientName   string    `json:"ClientName,omitempty"`
}

type generateOTPResponse struct {
	Status  FlexString `json:"status"`
	ID      FlexString `json:"id"`
	Message string     `json:"message"`
}

// OTPIssued is the payload of a successful OTP send. AccountExists is set when a sign-up send hit an
// existing account; RequestID then identifies the OTP the backend issued for the sign-in flow.
type OTPIssued struct {
	RequestID     string
	AccountExists bool
	Message       string
}

// VerifyOTPRequest is the OTP verification body.
type VerifyOTPRequest struct {
	ID      string  `json:"id"`
	PAN     string  `json:"pan"`
	OTPType OTPType `json:"OTP_Type"`
	OTP     string  `json:"OTP"`
}

type messageResponse struct {
	Status  FlexString `json:"status"`
	Message string     `json:"message"`
}

// CreateSessionRequest is the sign-in/sign-up submission body. ID is the verified mobile OTP request id.
type CreateSessionRequest struct {
	LoginType  LoginType `json:"LoginType"`
	ID         string    `json:"ID"`
	PAN        string    `json:"pan"`
	Mobile     string    `json:"mobile"`
	Email      string    `json:"email,omitempty"`
	DOB        string    `json:"dob,omitempty"`
	ClientName string    `json:"ClientName,omitempty"`
}

type createSessionResponse struct {
	Status     FlexString `json:"status"`
	Message    string     `json:"message"`
	SessionID  FlexString `json:"session_id"`
	TradingID  FlexString `json:"TradingId"`
	CustomerID FlexString `json:"CustomerId"`
	ClientID   FlexString `json:"client_id"`
	PAN        string     `json:"pan"`
	Mobile     FlexString `json:"mobile"`
	Email      string     `json:"email"`
	DOB        string     `json:"dob"`
	ClientName string     `json:"client_name"`
}

// SessionInfo is the session bootstrap payload returned by CreateSession.
type SessionInfo struct {
	SessionID  string
	TradingID  string
	CustomerID string
	ClientID   string
	PAN        string
	Mobile     string
	Email      string
	DOB        string
	ClientName string
}

// IPO is one open issue as listed by the backend.
type IPO struct {
	CompanyName  string     `json:"companyname"`
	Symbol       string     `json:"symbol"`
	SharesPerLot FlexFloat  `json:"noofequitysharesbid"`
	MinPrice     FlexFloat  `json:"minprice"`
	MaxPrice     FlexFloat  `json:"maxprice"`
	CutoffPrice  FlexFloat  `json:"cutoffprice"`
	Category     FlexString `json:"category"`
	OpenDate     string     `json:"opendate"`
	CloseDate    string     `json:"closedate"`
}

type listIPOResponse struct {
	Status  FlexString `json:"status"`
	Message string     `json:"message"`
	Data    []IPO      `json:"data"`
}

// IPOApplication is one row of the IPO submission array.
type IPOApplication struct {
	BOID        string  `json:"boid"`
	DPID        string  `json:"dpid"`
	Depository  string  `json:"depository"`
	CompanyName string  `json:"companyname"`
	Symbol      string  `json:"symbol"`
	ClientID    string  `json:"clientId"`
	LotsApplied int     `json:"lotsapplied"`
	Quantity    int     `json:"quantity"`
	Rate        float64 `json:"rate"`
	Cutoff      bool    `json:"cutoff"`
	FormType    string  `json:"formtype"`
	Category    string  `json:"category"`
	UPIID       string  `json:"upiid,omitempty"`
}

type ipoOrderStatus struct {
	OrderStatus   FlexString `json:"orderstatus"`
	ApplicationNo FlexString `json:"applicationNo"`
	Error         string     `json:"error"`
}

type submitIPOResponse struct {
	Status  FlexString       `json:"status"`
	Message string           `json:"message"`
	Data    []ipoOrderStatus `json:"data"`
}

// IPOOrderResult is the per-row outcome of an IPO submission.
type IPOOrderResult struct {
	Placed        bool
	ApplicationNo string
	Error         string
}

// BankAccount is one bank account in the KYC bank step.
type BankAccount struct {
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	HolderName    string `json:"holder_name"`
	AccountType   string `json:"account_type"`
	Primary       bool   `json:"primary"`
}

// Cheque references an uploaded cancelled cheque for an account.
type Cheque struct {
	AccountNumber string `json:"account_number"`
	DocumentID    string `json:"document_id"`
}

// SaveBankRequest is the primary bank-save body.
type SaveBankRequest struct {
	ClientID string        `json:"client_id"`
	Accounts []BankAccount `json:"accounts"`
	Cheques  []Cheque      `json:"cheques,omitempty"`
}

// PennyDropRequest asks the backend to verify one account by penny drop.
type PennyDropRequest struct {
	ClientID      string `json:"client_id"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	HolderName    string `json:"holder_name"`
}

type pennyDropResponse struct {
	Success    FlexString `json:"Success"`
	Message    string     `json:"message"`
	NameAtBank string     `json:"name_at_bank"`
}

// PennyDropResult is the payload of a successful penny drop.
type PennyDropResult struct {
	AccountNumber string
	NameAtBank    string
}

// ListTradesRequest selects trades for a client and date range (YYYY-MM-DD).
type ListTradesRequest struct {
	ClientID string `json:"client_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Segment  string `json:"segment,omitempty"`
}

// Trade is one executed trade row.
type Trade struct {
	TradeDate string     `json:"trade_date"`
	Exchange  string     `json:"exchange"`
	Segment   string     `json:"segment"`
	Symbol    string     `json:"symbol"`
	Side      string     `json:"buy_sell"`
	Quantity  FlexFloat  `json:"quantity"`
	Price     FlexFloat  `json:"price"`
	OrderNo   FlexString `json:"order_no"`
	TradeNo   FlexString `json:"trade_no"`
}

type listTradesResponse struct {
	Status  FlexString `json:"status"`
	Message string     `json:"message"`
	Data    []Trade    `json:"data"`
}

type validateSessionRequest struct {
	SessionID string `json:"session_id"`
}
