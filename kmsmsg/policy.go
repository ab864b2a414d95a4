package kmsmsg

// ActivatedMachines computes the count of activated machines to report,
// per §4.4 point 2: never less than max(requiredClientCount,
// minClients(appGroup)); if the operator's configured clientCount is
// higher than that floor, the higher, operator-chosen number is reported
// instead (so an admin can make the server look busier than the bare
// minimum a client demands).
func ActivatedMachines(requiredClientCount uint32, minClients int, configuredClientCount int) uint32 {
	floor := requiredClientCount
	if uint32(minClients) > floor {
		floor = uint32(minClients)
	}
	if configuredClientCount > 0 && uint32(configuredClientCount) > floor {
		return uint32(configuredClientCount)
	}
	return floor
}
