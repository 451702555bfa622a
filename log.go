package dgram

import (
	"os"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/bassosimone/errclass"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "category"},
	})
	log.SetOutput(os.Stdout)
}

// SetLogger replaces the package logger. Channels created afterwards use it.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// Logger returns the package logger.
func Logger() *logrus.Logger {
	return log
}

// CheckError logs err with msg and reports whether err was nil.
func CheckError(msg string, err error) bool {
	if err != nil {
		log.WithField("errClass", errclass.New(err)).Warn(msg, err)
		return false
	}
	return true
}
