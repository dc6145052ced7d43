package shared

// RentBillingLastRunKey is the redis key holding the timestamp of the last
// completed rent-billing dispatch. The manager uses it to self-throttle the
// batch to at most one run per configured period.
const RentBillingLastRunKey = "corp:rent:last_run"

// OutboundMessageQueueKey is the redis list the messaging outbox pushes to.
// Session routing drains it outside this core.
const OutboundMessageQueueKey = "messages:outbound"

// BroadcastChannel is the redis pub/sub channel carrying corporation cache
// invalidation commands between zone processes.
const BroadcastChannel = "corp:broadcast"

// InboundCommandQueueKey is the redis list session routing pushes
// authenticated character commands onto, one list per zone.
const InboundCommandQueueKey = "commands:inbound"
