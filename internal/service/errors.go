package service

type ErrorCode string

const (
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeTeamFull           ErrorCode = "TEAM_FULL"
	ErrorCodeDuplicateEntry     ErrorCode = "DUPLICATE_ENTRY"
	ErrorCodeRegistrationClosed ErrorCode = "REGISTRATION_CLOSED"
	ErrorCodeInvalidGameType    ErrorCode = "INVALID_GAME_TYPE"
	ErrorCodeNotCaptain         ErrorCode = "NOT_CAPTAIN"
	ErrorCodeInvalidBody        ErrorCode = "INVALID_BODY"
	ErrorCodeUnspecified        ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}
