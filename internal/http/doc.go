// Package http exposes the availability service over a chi router.
//
// Callers are identified by the X-User-ID header set by the upstream gateway;
// X-User-Role: admin grants administrator rights. Routes:
//   - GET, PUT /availability/me: read (creating an empty schedule on first
//     access) or replace the caller's schedule. Body and response use the
//     `scheduleDTO` shape: {"weekly_schedule": {"MONDAY": {...}}, "monthly_schedule": {"2024-03-01": {...}}}.
//   - PUT /availability/me/days/{day}: edit one weekday of the weekly pattern.
//   - PUT, DELETE /availability/me/dates/{date}: set or remove a date override.
//   - PUT /availability/me/range, DELETE /availability/me/range?start_date=&end_date=:
//     write or clear overrides across an inclusive span, optionally filtered by days_of_week.
//   - POST /availability/me/generate: copy the weekly pattern into overrides for
//     {"start_date","end_date"} or {"month":"YYYY-MM"}.
//   - DELETE /availability/me/overrides: drop every override.
//   - GET /availability/me/check?at=YYYY-MM-DDTHH:mm: is the caller working then.
//   - GET /availability/me/calendar?start_date=&end_date=: resolved day per date.
//   - /admin/availability/users/{userID}/...: the same set for any user, admin only.
//   - GET /admin/availability/available?at=: users working at an instant, admin only.
//   - GET /healthz: store reachability.
//
// Day entries are {"working": bool, "start_time": "HH:mm", "end_time": "HH:mm"}.
// Validation failures answer 422 with an `errors` map keyed by field.
package http
