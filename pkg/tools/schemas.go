package tools

// schemaFor returns the JSON Schema text for a required tool's
// parameters. Schemas are intentionally minimal (object + required keys)
// — they exist to exercise the registry's schema-validation gate, not to
// fully describe every CRM field.
func schemaFor(name string) string {
	switch name {
	case "create_lead", "upsert_lead":
		return `{"type":"object","required":["email"],"properties":{"email":{"type":"string"},"firstName":{"type":"string"},"lastName":{"type":"string"},"company":{"type":"string"}}}`
	case "convert_lead":
		return `{"type":"object","required":["leadId"],"properties":{"leadId":{}}}`
	case "update_lead_status":
		return `{"type":"object","required":["leadId","status"],"properties":{"leadId":{},"status":{"type":"string"}}}`
	case "update_lead_fields":
		return `{"type":"object","required":["leadId","fields"],"properties":{"leadId":{},"fields":{"type":"object"}}}`
	case "set_lead_score":
		return `{"type":"object","required":["leadId","score","scoreType"],"properties":{"leadId":{},"score":{"type":"number"},"scoreType":{"type":"string"}}}`
	case "match_account":
		return `{"type":"object","required":["domain"],"properties":{"domain":{"type":"string"}}}`
	case "create_contact":
		return `{"type":"object","required":["email"],"properties":{"email":{"type":"string"}}}`
	case "link_contact_to_account":
		return `{"type":"object","required":["contactId","accountId"],"properties":{"contactId":{},"accountId":{}}}`
	case "create_opportunity":
		return `{"type":"object","required":["accountId","name"],"properties":{"accountId":{},"name":{"type":"string"}}}`
	case "update_opportunity_stage":
		return `{"type":"object","required":["opportunityId","stage"],"properties":{"opportunityId":{},"stage":{"type":"string"}}}`
	case "set_opportunity_value":
		return `{"type":"object","required":["opportunityId","value"],"properties":{"opportunityId":{},"value":{"type":"number"}}}`
	case "attach_campaign":
		return `{"type":"object","required":["leadId","campaignId"],"properties":{"leadId":{},"campaignId":{}}}`
	case "create_task":
		return `{"type":"object","required":["relatedToId","subject"],"properties":{"relatedToId":{},"subject":{"type":"string"}}}`
	case "log_activity":
		return `{"type":"object","required":["relatedToId","type"],"properties":{"relatedToId":{},"type":{"type":"string"},"description":{"type":"string"}}}`
	case "add_note":
		return `{"type":"object","required":["relatedToId","body"],"properties":{"relatedToId":{},"body":{"type":"string"}}}`
	case "create_follow_up":
		return `{"type":"object","required":["relatedToId","dueAt"],"properties":{"relatedToId":{},"dueAt":{"type":"string"}}}`
	case "sync_firmographics":
		return `{"type":"object","required":["leadId","firmographics"],"properties":{"leadId":{},"firmographics":{"type":"object"}}}`
	default:
		return ""
	}
}
