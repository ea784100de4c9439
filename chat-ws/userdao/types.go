package userdao

// User represents a chat user profile stored in DynamoDB. Profiles are
// created on first connect and live independently of connection churn; the
// connection subsystem never deletes them.
type User struct {
	Username   string            `dynamodbav:"username" ddb:"hash"`
	Attributes map[string]string `dynamodbav:"attributes,omitempty"`
	FirstSeen  int64             `dynamodbav:"firstSeen"`
}
