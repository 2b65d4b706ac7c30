package util

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
)

// OpenBrowser 打开默认浏览器
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		// rundll32 在旧版 Windows 上比 cmd /c start 稳定
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}

// OpenBrowserWithFallback 主要方式失败时尝试备选方式
func OpenBrowserWithFallback(url string) error {
	err := OpenBrowser(url)
	if err == nil {
		return nil
	}

	switch runtime.GOOS {
	case "windows":
		return exec.Command("explorer", url).Start()
	case "linux":
		browsers := []string{"google-chrome", "firefox", "chromium-browser", "sensible-browser"}
		for _, browser := range browsers {
			if err := exec.Command(browser, url).Start(); err == nil {
				return nil
			}
		}
	}

	return err
}

// PortAvailable 端口是否可监听
func PortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// FindAvailablePort 从 startPort 开始向后查找可用端口，最多尝试 tries 次
// 都不可用时返回 startPort
func FindAvailablePort(startPort, tries int) int {
	for i := 0; i < tries; i++ {
		p := startPort + i
		if p > 65535 {
			break
		}
		if PortAvailable(p) {
			return p
		}
	}
	return startPort
}

// PlannerURL 页面地址
func PlannerURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
