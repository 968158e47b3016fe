package addressing

import (
	"fmt"

	"github.com/modpedal/hostd/internal/model"
)

// DefaultInventory builds the default actuator topology: four knobs and
// four footswitches on device 0, each mapped
// deterministically to an (hw_type, hw_id, actuator_type, actuator_index)
// tuple for HMI calls.
func DefaultInventory() map[string]model.Actuator {
	inv := make(map[string]model.Actuator, 8)
	for i := 1; i <= 4; i++ {
		uri := fmt.Sprintf("/hmi/knob%d", i)
		inv[uri] = model.Actuator{URI: uri, HWType: model.HWTypeMOD, HWID: 0, Kind: model.ActuatorKnob, Index: i - 1}
	}
	for i := 1; i <= 4; i++ {
		uri := fmt.Sprintf("/hmi/footswitch%d", i)
		inv[uri] = model.Actuator{URI: uri, HWType: model.HWTypeMOD, HWID: 0, Kind: model.ActuatorFootswitch, Index: i - 1}
	}
	return inv
}
