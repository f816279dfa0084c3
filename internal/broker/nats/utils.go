package nats

import (
	"strings"
)

var subjectReplacer = strings.NewReplacer(
	" ", "_",
	",", "_",
	":", "_",
	"?", "_",
	"[", "_",
	"]", "_",
)

// ToNATSSubject converts an MQTT topic to a NATS subject.
// MQTT uses / as separators and +/# as wildcards,
// NATS uses . as separators and */> as wildcards.
func ToNATSSubject(mqttTopic string) string {
	subject := strings.ReplaceAll(mqttTopic, "+", "*")
	subject = strings.ReplaceAll(subject, "#", ">")
	subject = strings.ReplaceAll(subject, "/", ".")
	return NormalizeSubject(subject)
}

// NormalizeSubject replaces characters NATS does not allow in subjects
func NormalizeSubject(subject string) string {
	return subjectReplacer.Replace(subject)
}
