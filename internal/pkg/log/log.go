package log

import (
	log "github.com/sirupsen/logrus"
)

type typedLog struct {
	General   *log.Entry
	Gateway   *log.Entry
	Collector *log.Entry
	Probe     *log.Entry
}

var (
	Logger *typedLog
)

// Init logger on start
func init() {
	Logger = &typedLog{
		General:   log.WithFields(log.Fields{"module": "general"}),
		Gateway:   log.WithFields(log.Fields{"module": "gateway"}),
		Collector: log.WithFields(log.Fields{"module": "collector"}),
		Probe:     log.WithFields(log.Fields{"module": "probe"}),
	}
}

func Setup(lvl string) error {
	logLevel, err := log.ParseLevel(lvl)
	if err != nil {
		return err
	}

	// log format
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	log.SetLevel(logLevel)
	return nil
}
