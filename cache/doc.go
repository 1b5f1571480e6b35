/*
Package cache stores scalar values in a kv.Store under generated keys and
instruments the store operation.

Every Store call runs through an interceptor pipeline:

	LogCalls -> CountCalls -> RecordHistory -> set

CountCalls increments a counter named after the operation identity
(StoreOperation) before anything else happens, so the counter reflects
attempts rather than successes. RecordHistory appends the rendered input to
"<identity>:inputs" before the value is written and the generated key to
"<identity>:outputs" after. The steps are independent store writes: a failure
part way leaves the earlier writes in place.

Replay reads both lists back and pairs them in call order.
*/
package cache
