package configuration

type Configuration struct {
	HttpAddr          string `usage:"HTTP address"`
	Dir               string `usage:"data directory for journal and sqlite backends"`
	Backend           string `usage:"storage backend: memory, journal, sqlite, postgres or dynamodb"`
	DSN               string `usage:"postgres connection string or sqlite file"`
	DynamoTable       string `usage:"dynamodb table name"`
	AWSRegion         string `usage:"aws region for dynamodb"`
	AWSEndpoint       string `usage:"custom dynamodb endpoint, for local testing"`
	Metrics           bool   `usage:"serve prometheus metrics at /metrics"`
	EnableCompression bool   `usage:"gzip responses"`
	Version           bool   `usage:"show version and exit"`
	ShowBanner        bool   `usage:"show big banner"`
	ShowConfig        bool   `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:          "127.0.0.1:8080",
		Dir:               "data",
		Backend:           "journal",
		DynamoTable:       "todostore",
		AWSRegion:         "us-east-1",
		Metrics:           true,
		EnableCompression: true,
		ShowBanner:        true,
	}
}
