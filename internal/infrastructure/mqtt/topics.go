package mqtt

import "fmt"

// TopicPrefix is the base of every Conduit topic. Site ID partitions
// multi-site brokers: conduit/{site}/...
const TopicPrefix = "conduit"

// Topics builds Conduit topic strings for one site. Using the builders
// keeps topic naming consistent between publishers and subscribers.
type Topics struct {
	Site string
}

// SignalState returns the retained state topic for one signal.
//
// Example: conduit/lab1/stat/table1/position
func (t Topics) SignalState(deviceName, field string) string {
	return fmt.Sprintf("%s/%s/stat/%s/%s", TopicPrefix, t.Site, deviceName, field)
}

// SignalCommand returns the command topic for one signal.
//
// Example: conduit/lab1/cmnd/table1/position
func (t Topics) SignalCommand(deviceName, field string) string {
	return fmt.Sprintf("%s/%s/cmnd/%s/%s", TopicPrefix, t.Site, deviceName, field)
}

// SystemStatus returns the session status topic carrying the LWT.
//
// Example: conduit/lab1/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s/system/status", TopicPrefix, t.Site)
}

// AllSignalStates returns a pattern matching every state topic on the site.
//
// Pattern: conduit/lab1/stat/+/+
func (t Topics) AllSignalStates() string {
	return fmt.Sprintf("%s/%s/stat/+/+", TopicPrefix, t.Site)
}

// AllTopics returns a pattern matching the whole site.
// Use with caution, this receives ALL traffic.
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/%s/#", TopicPrefix, t.Site)
}
