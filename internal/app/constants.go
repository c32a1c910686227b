package app

const (
	Name           = "socialgo"
	ConfigFilename = "config.json"
	DBFilename     = "cache.db"
	LogFilename    = "app.log"
)
