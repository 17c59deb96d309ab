package outbox

const dailyRecordUpdatedSchema = `{
  "type": "object",
  "title": "DailyRecordUpdated",
  "properties": {
    "user_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "steps": {"type": "integer"},
    "calories_burned": {"type": "integer"},
    "updated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "date", "steps", "calories_burned", "updated_at"],
  "additionalProperties": false
}`

const syncAdvisorySchema = `{
  "type": "object",
  "title": "SyncAdvisory",
  "properties": {
    "user_id": {"type": "string"},
    "category": {"type": "string"},
    "detail": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "category", "occurred_at"],
  "additionalProperties": false
}`
