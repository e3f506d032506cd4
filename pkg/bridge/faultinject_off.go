//go:build !faultinject

package bridge

const faultInjectionEnabled = false
