package sbmark

// ErrorClass groups HTTP statuses by how the run treats them.
type ErrorClass int

const (
	Unclassified ErrorClass = iota
	Success
	CriticalError
	ClientError
	ServerError
)

func (c ErrorClass) String() string {
	switch c {
	case Success:
		return "success"
	case CriticalError:
		return "critical"
	case ClientError:
		return "client"
	case ServerError:
		return "server"
	}
	return "unclassified"
}

func (c ErrorClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classify maps a status code to its class. 400-406 are critical because they
// point at a broken setup (bad auth, missing bucket, bad request) rather than load.
// A zero status (transport failure) and 1xx/3xx are unclassified.
func Classify(status int) ErrorClass {
	switch {
	case status >= 200 && status <= 299:
		return Success
	case status >= 400 && status <= 406:
		return CriticalError
	case status >= 407 && status <= 499:
		return ClientError
	case status >= 500 && status <= 599:
		return ServerError
	}
	return Unclassified
}
