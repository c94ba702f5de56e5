//go:build windows

package notify

import (
	"context"
	"fmt"
	"os/exec"
)

type windowsNotifier struct{}

func newPlatformNotifier() Notifier {
	return &windowsNotifier{}
}

// Notify shows a toast through PowerShell. Failures are swallowed: older
// Windows builds lack the toast API.
func (w *windowsNotifier) Notify(ctx context.Context, a Alert) error {
	script := fmt.Sprintf(`
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] > $null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$textNodes = $template.GetElementsByTagName("text")
$textNodes.Item(0).AppendChild($template.CreateTextNode(%q)) > $null
$textNodes.Item(1).AppendChild($template.CreateTextNode(%q)) > $null
$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("skillspan").Show($toast)
`, a.Title(), a.Message)

	_ = exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
	return nil
}

func (w *windowsNotifier) Name() string { return "windows" }
