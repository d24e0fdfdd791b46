package smcreader

// Controller keys read every tick.
const (
	KeyBatteryRate    = "PPBR"
	KeyAdapterPower   = "PDTR"
	KeySystemTotal    = "PSTR"
	KeyScreenPower    = "PDBR"
	KeyAdapterVoltage = "VD0R"
	KeyAdapterCurrent = "ID0R"
	KeyBatteryCurrent = "B0AC"
	KeyFullCapacity   = "B0FC"
	KeyDesignCapacity = "B0DC"
	KeyCycleCount     = "B0CT"
	KeyLidClosed      = "MSLD"
	KeyPlatform       = "RPlt"
	KeyChargeControl  = "CHTE"
	KeyDischarge      = "CHIE"
	KeyFanCount       = "FNum"
)

// Alias lists, most preferred first.
var (
	PackagePowerKeys      = []string{"PHPC", "PHPS", "PCTR", "PCPC", "PC0C"}
	BatteryVoltageKeys    = []string{"B0AV", "SBAV"}
	BatteryPercentKeys    = []string{"BUIC", "BRSC"}
	RemainingCapacityKeys = []string{"B0RM", "BRMC"}
)

// TemperatureKeys are the CPU/SoC die and proximity sensors seen across
// Intel and Apple silicon generations.
var TemperatureKeys = []string{
	// Apple silicon performance and efficiency cores
	"Tp09", "Tp0T", "Tp01", "Tp05", "Tp0D", "Tp0H", "Tp0L", "Tp0P", "Tp0X", "Tp0b",
	"Tp0f", "Tp0j", "Tp0n", "Tp0r", "Tp0v", "Tp0z", "Tp03", "Tp07", "Tp0B", "Tp0F",
	"Tp1h", "Tp1t", "Tp1p", "Tp1l", "Tp0y", "Tp0S", "Tp0V", "Tp0Y", "Tp0e", "Tp0i",
	// Apple silicon SoC die
	"Tf04", "Tf09", "Tf0A", "Tf0B", "Tf0D", "Tf0E", "Tf44", "Tf49", "Tf4A", "Tf4B",
	"Te05", "Te0L", "Te0P", "Te0S",
	// Intel package, die and proximity
	"TC0P", "TC0D", "TC0E", "TC0F", "TC0H", "TCXC", "TCSA", "TC1C", "TC2C", "TC3C",
	"TC4C", "TC5C", "TC6C", "TC7C", "TC8C",
}
