package outbox

const activityCompletedSchema = `{
  "type": "object",
  "title": "ActivityCompleted",
  "properties": {
    "record_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "client_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "calendar_day": {"type": "string", "format": "date"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["record_id", "tenant_id", "client_id", "activity_id", "calendar_day", "occurred_at"],
  "additionalProperties": false
}`

const checkinRescheduledSchema = `{
  "type": "object",
  "title": "CheckinRescheduled",
  "properties": {
    "tenant_id": {"type": "string"},
    "client_id": {"type": "string"},
    "next_due_date": {"type": "string", "format": "date"},
    "cause": {"type": "string", "enum": ["completion", "manual"]}
  },
  "required": ["tenant_id", "client_id", "next_due_date", "cause"],
  "additionalProperties": false
}`
