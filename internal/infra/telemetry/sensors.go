package telemetry

// ThermalMonitor reads CPU temperature via platform-specific backends
// (sysfs on Linux, osx-cpu-temp on macOS, WMI on Windows). No backend
// reads a GPU sensor.
type ThermalMonitor struct{}

// NewThermalMonitor creates a thermal monitor.
func NewThermalMonitor() *ThermalMonitor { return &ThermalMonitor{} }

// CPUTemp returns CPU temperature in Celsius, 0 if unavailable (safe
// default — no throttling triggered on missing sensor data).
func (t *ThermalMonitor) CPUTemp() int { return readCPUTemp() }

// GPUTemp returns 0 on every platform; no GPU sensor is read.
func (t *ThermalMonitor) GPUTemp() int { return readGPUTemp() }

// BatteryMonitor reads the host's battery state.
type BatteryMonitor struct{}

// NewBatteryMonitor creates a battery monitor.
func NewBatteryMonitor() *BatteryMonitor { return &BatteryMonitor{} }

// IsPresent reports whether the machine has a battery.
func (b *BatteryMonitor) IsPresent() bool { return hasBattery() }

// Percentage returns battery charge level (0-100).
func (b *BatteryMonitor) Percentage() int { return batteryPercentage() }

// IsCharging reports whether the battery is charging or on AC.
func (b *BatteryMonitor) IsCharging() bool { return isBatteryCharging() }
