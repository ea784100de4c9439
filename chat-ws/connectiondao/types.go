package connectiondao

// Connection represents a live WebSocket connection stored in DynamoDB.
// ConnectionID is assigned by the gateway at connect time and never reused.
type Connection struct {
	ConnectionID string `dynamodbav:"connectionId" ddb:"hash"`
	Username     string `dynamodbav:"username" ddb:"gsi_hash:UsernameIndex"`
	Endpoint     string `dynamodbav:"endpoint"`
	ConnectedAt  int64  `dynamodbav:"connectedAt"`
	TTL          int64  `dynamodbav:"ttl"`
}
