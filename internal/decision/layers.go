package decision

// LayersFor maps an intent to its context layers. This is intentionally a
// total, non-stateful function over the intent enum: no confidence, thread
// history, or scope signal may alter the mapping. ProductIdentity is always
// granted.
func LayersFor(intent Intent) ContextLayers {
	layers := ContextLayers{ProductIdentity: true}

	switch intent {
	case IntentSingleMeeting:
		layers.SingleMeeting = true
	case IntentMultiMeeting:
		layers.MultiMeeting = true
	case IntentProductKnowledge:
		layers.ProductSSOT = true
	case IntentDocumentSearch:
		layers.DocumentContext = true
	case IntentExternalResearch:
		// SSOT access supports value-prop chaining on research questions.
		layers.ProductSSOT = true
	case IntentSlackSearch:
		layers.SlackSearch = true
	case IntentGeneralHelp, IntentRefuse, IntentClarify:
		// Identity only.
	}

	return layers
}
