package session

// Notifier receives the user-visible, non-blocking notifications this core
// emits (the UI renders them however it likes).
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Error(string) {}
func (NopNotifier) Info(string) {}
