package events

import "time"

// Payload keys shared by publishers and subscribers.
const (
	KeyCommand       = "command"
	KeyExecutionTime = "execution_time_ms"
	KeyOutput        = "output"
	KeyError         = "error"
	KeySource        = "source"
	KeyFilePath      = "file_path"
	KeyExitCode      = "exit_code"
	KeyHint          = "hint"
	KeyLevel         = "automation_level"
)

// CommandSuccess builds the payload of EventCommandSuccess.
func CommandSuccess(command, filePath string, elapsed time.Duration, output string) map[string]interface{} {
	return map[string]interface{}{
		KeyCommand:       command,
		KeyFilePath:      filePath,
		KeyExecutionTime: elapsed.Milliseconds(),
		KeyOutput:        output,
	}
}

// CommandError builds the payload of EventCommandError. hint may be empty.
func CommandError(command, filePath, errMsg string, exitCode int, hint string) map[string]interface{} {
	data := map[string]interface{}{
		KeyCommand:  command,
		KeyFilePath: filePath,
		KeyError:    errMsg,
		KeyExitCode: exitCode,
	}
	if hint != "" {
		data[KeyHint] = hint
	}
	return data
}

// Fault builds the payload of EventError.
func Fault(source string, err error) map[string]interface{} {
	return map[string]interface{}{
		KeySource: source,
		KeyError:  err.Error(),
	}
}

// String returns data[key] as a string, or "" when absent.
func String(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}
